package routing

import (
	"strings"
)

// Maneuver types, using the vocabulary of OSRM-compatible providers. Other
// providers translate into these in their clients.
const (
	ManeuverDepart         = "depart"
	ManeuverArrive         = "arrive"
	ManeuverTurn           = "turn"
	ManeuverContinue       = "continue"
	ManeuverNewName        = "new name"
	ManeuverMerge          = "merge"
	ManeuverOnRamp         = "on ramp"
	ManeuverOffRamp        = "off ramp"
	ManeuverFork           = "fork"
	ManeuverEndOfRoad      = "end of road"
	ManeuverRoundabout     = "roundabout"
	ManeuverRotary         = "rotary"
	ManeuverRoundaboutTurn = "roundabout turn"
	ManeuverExitRoundabout = "exit roundabout"
	ManeuverExitRotary     = "exit rotary"
)

// Maneuver modifiers
const (
	ModifierUTurn       = "uturn"
	ModifierSharpRight  = "sharp right"
	ModifierRight       = "right"
	ModifierSlightRight = "slight right"
	ModifierStraight    = "straight"
	ModifierSlightLeft  = "slight left"
	ModifierLeft        = "left"
	ModifierSharpLeft   = "sharp left"
)

var modifierPhrases = map[string]string{
	ModifierUTurn:       "make a U-turn",
	ModifierSharpRight:  "turn sharp right",
	ModifierRight:       "turn right",
	ModifierSlightRight: "bear right",
	ModifierStraight:    "go straight",
	ModifierSlightLeft:  "bear left",
	ModifierLeft:        "turn left",
	ModifierSharpLeft:   "turn sharp left",
}

// sides maps modifiers onto the side of the road they refer to
var sides = map[string]string{
	ModifierSharpRight:  "right",
	ModifierRight:       "right",
	ModifierSlightRight: "right",
	ModifierSharpLeft:   "left",
	ModifierLeft:        "left",
	ModifierSlightLeft:  "left",
}

// maneuverText describes how to phrase each maneuver type. needsModifier marks
// types that are meaningless without a direction.
type maneuverText struct {
	needsModifier bool
	phrase        func(modifier string) string
	preposition   string
}

var maneuvers = map[string]maneuverText{
	ManeuverDepart: {
		phrase:      func(string) string { return "Head out" },
		preposition: "on",
	},
	ManeuverArrive: {
		phrase: func(m string) string {
			if side, ok := sides[m]; ok {
				return "Your destination is on the " + side
			}
			return "You have arrived at your destination"
		},
	},
	ManeuverTurn: {
		needsModifier: true,
		phrase:        func(m string) string { return capitalize(modifierPhrases[m]) },
		preposition:   "onto",
	},
	ManeuverContinue: {
		needsModifier: true,
		phrase: func(m string) string {
			if m == ModifierStraight {
				return "Continue straight"
			}
			if m == ModifierUTurn {
				return "Make a U-turn"
			}
			return "Continue " + m
		},
		preposition: "on",
	},
	ManeuverNewName: {
		phrase:      func(string) string { return "Continue" },
		preposition: "onto",
	},
	ManeuverMerge: {
		phrase: func(m string) string {
			if side, ok := sides[m]; ok {
				return "Merge " + side
			}
			return "Merge"
		},
		preposition: "onto",
	},
	ManeuverOnRamp: {
		phrase: func(m string) string {
			if side, ok := sides[m]; ok {
				return "Take the ramp on the " + side
			}
			return "Take the ramp"
		},
		preposition: "onto",
	},
	ManeuverOffRamp: {
		phrase: func(m string) string {
			if side, ok := sides[m]; ok {
				return "Take the exit on the " + side
			}
			return "Take the exit"
		},
		preposition: "onto",
	},
	ManeuverFork: {
		needsModifier: true,
		phrase: func(m string) string {
			if side, ok := sides[m]; ok {
				return "Keep " + side + " at the fork"
			}
			return "Keep straight at the fork"
		},
		preposition: "onto",
	},
	ManeuverEndOfRoad: {
		needsModifier: true,
		phrase: func(m string) string {
			return capitalize(modifierPhrases[m]) + " at the end of the road"
		},
		preposition: "onto",
	},
	ManeuverRoundabout: {
		phrase:      func(string) string { return "Enter the roundabout" },
		preposition: "and exit onto",
	},
	ManeuverRotary: {
		phrase:      func(string) string { return "Enter the rotary" },
		preposition: "and exit onto",
	},
	ManeuverRoundaboutTurn: {
		needsModifier: true,
		phrase:        func(m string) string { return "At the roundabout, " + modifierPhrases[m] },
		preposition:   "onto",
	},
	ManeuverExitRoundabout: {
		phrase:      func(string) string { return "Exit the roundabout" },
		preposition: "onto",
	},
	ManeuverExitRotary: {
		phrase:      func(string) string { return "Exit the rotary" },
		preposition: "onto",
	},
}

// describeManeuver normalises a provider (type, modifier) pair and renders its
// instruction text. Unrecognised combinations degrade to "continue straight"
// instead of failing, since provider vocabularies grow over time.
func describeManeuver(maneuverType, modifier, street string) (string, string, string) {
	maneuverType = strings.ToLower(strings.TrimSpace(maneuverType))
	modifier = strings.ToLower(strings.TrimSpace(modifier))

	text, ok := maneuvers[maneuverType]
	_, knownModifier := modifierPhrases[modifier]
	if modifier != "" && !knownModifier {
		modifier = ""
	}
	if !ok || (text.needsModifier && modifier == "") {
		maneuverType, modifier = ManeuverContinue, ModifierStraight
		text = maneuvers[ManeuverContinue]
	}

	instruction := text.phrase(modifier)
	if street != "" && text.preposition != "" {
		instruction += " " + text.preposition + " " + street
	}
	return maneuverType, modifier, instruction
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
