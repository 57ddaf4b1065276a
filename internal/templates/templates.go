// Package templates is the fallback template bank: deterministic canned
// content keyed by provider role and distraction category.
package templates

import (
	"strings"

	"focusaura/internal/domain"
)

// Entry is the canned content for one category.
type Entry struct {
	Action   string
	Evidence string
	Recency  string
	Citation string
}

// WhyItWorks is the rationale composed from the evidence and recency templates.
func (e Entry) WhyItWorks() string {
	return JoinRationale(e.Evidence, e.Recency)
}

// JoinRationale joins non-empty rationale parts with a single space.
func JoinRationale(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " ")
}

var bank = map[domain.Category]Entry{
	domain.CategoryVideo: {
		Action:   "Stand up and take a 90-second walk around your space, no phone.",
		Evidence: "Brief walks reset prefrontal cortex activity and cut the switching cost from entertainment back to deep work.",
		Recency:  "Recent work on break length finds short movement breaks restore attention faster than passive scrolling.",
		Citation: "Oppezzo & Schwartz, Stanford (2014); MIT break-duration research",
	},
	domain.CategorySocial: {
		Action:   "Close every tab except your work, set a 25-minute timer, and start.",
		Evidence: "Social feeds trigger dopamine spikes that make demanding work feel harder; a clean slate plus a time limit reactivates focus.",
		Recency:  "Studies of context switching report that resuming a task after social media takes over 20 minutes on average.",
		Citation: "Newport, Deep Work (2016); Mark et al., UC Irvine (2008)",
	},
	domain.CategoryNews: {
		Action:   "Write down the one headline you want to revisit later, then close the news tab.",
		Evidence: "Capturing an open loop on paper frees working memory that would otherwise keep pulling you back.",
		Recency:  "Research on the Zeigarnik effect shows that writing a plan for an unfinished item reduces intrusive thoughts about it.",
		Citation: "Masicampo & Baumeister, Journal of Personality and Social Psychology (2011)",
	},
	domain.CategoryShopping: {
		Action:   "Add the item to a wishlist, close the store, and return to your next concrete step.",
		Evidence: "Deferring a purchase decision removes the novelty reward that keeps you browsing.",
		Recency:  "Consumer research finds that a short delay before buying lowers impulse purchases and the urge to keep shopping.",
		Citation: "Hoch & Loewenstein, Journal of Consumer Research (1991)",
	},
	domain.CategoryGaming: {
		Action:   "Save and quit the game now, then spend two minutes listing your next three work steps.",
		Evidence: "Games are built around rapid reward loops; a written plan gives your brain a concrete next reward to chase instead.",
		Recency:  "Implementation-intention studies show that if-then plans double follow-through on the intended task.",
		Citation: "Gollwitzer & Sheeran, Advances in Experimental Social Psychology (2006)",
	},
	domain.CategoryIdle: {
		Action:   "Take three slow box breaths, then type the very next sentence of your work.",
		Evidence: "Box breathing engages the parasympathetic nervous system and restores executive function after a lull.",
		Recency:  "Recent breathing studies report measurable drops in stress markers after only a few minutes of paced breathing.",
		Citation: "Balban et al., Cell Reports Medicine (2023)",
	},
}

var defaultEntry = Entry{
	Action:   "Take three deep breaths and write one sentence about what you will do next.",
	Evidence: "Slow breathing lowers stress and restores executive function, and writing your next step clarifies intent.",
	Recency:  "Recent research on attention residue shows that naming the next action helps the mind let go of the interruption.",
	Citation: "Leroy, Organizational Behavior and Human Decision Processes (2009)",
}

// Lookup returns the entry for a category, falling back to the default entry.
func Lookup(category domain.Category) Entry {
	if e, ok := bank[category]; ok {
		return e
	}
	return defaultEntry
}

// Template returns the canned payload a provider role contributes for a category.
func Template(role domain.ProviderRole, category domain.Category) string {
	e := Lookup(category)
	switch role {
	case domain.RoleEvidence:
		return e.Evidence
	case domain.RoleRecency:
		return e.Recency
	case domain.RoleSynthesis:
		return e.Action
	default:
		return e.Action
	}
}

// Citation returns the fixed attribution for a category.
func Citation(category domain.Category) string {
	return Lookup(category).Citation
}

// GoalReminder formats the goal line of a response.
func GoalReminder(goal string) string {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return "Your goal: get back to the task you planned."
	}
	return "Your goal: " + goal
}
