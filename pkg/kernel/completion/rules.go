package completion

// Rules holds the correlation tables the matcher consults.
type Rules struct {
	// EventCommands maps a semantic event type to the command identifiers
	// that produce it.
	EventCommands map[EventType][]string
	// EventKeywords maps a semantic event type to keywords matched against
	// the text of items that declare no command identifier.
	EventKeywords map[EventType][]string
	// CommandKeywords maps a command identifier to keywords, used for
	// command lifecycle events on items that declare no command identifier.
	CommandKeywords map[string][]string
}

// DefaultRules returns the built-in correlation tables.
func DefaultRules() Rules {
	return Rules{
		EventCommands: map[EventType][]string{
			EventSketchCreated:  {"SketchCreate"},
			EventSketchFinished: {"SketchStop"},
			EventExtrudeCreated: {"Extrude", "FusionExtrudeCommand"},
			EventRevolveCreated: {"Revolve", "FusionRevolveCommand"},
			EventFilletCreated:  {"FilletEdge", "FusionFilletCommand", "FusionFilletEdgeCommand"},
			EventChamferCreated: {"ChamferEdge", "FusionChamferCommand"},
			EventSweepCreated:   {"Sweep", "FusionSweepCommand"},
			EventShellCreated:   {"Shell", "FusionShellCommand"},
			EventComponentCreated: {
				"FusionCreateNewComponentCommand",
			},
			EventBodyCreated: {
				"Extrude", "FusionExtrudeCommand",
				"Revolve", "FusionRevolveCommand",
				"Sweep", "FusionSweepCommand",
				"PrimitiveBox", "PrimitiveCylinder", "PrimitiveSphere",
			},
			EventFeatureCreated: {
				"Extrude", "FusionExtrudeCommand",
				"Revolve", "FusionRevolveCommand",
				"FilletEdge", "FusionFilletCommand", "FusionFilletEdgeCommand",
				"ChamferEdge", "FusionChamferCommand",
				"Sweep", "FusionSweepCommand",
				"Shell", "FusionShellCommand",
			},
		},
		EventKeywords: map[EventType][]string{
			EventSketchCreated:    {"create a sketch", "create sketch", "new sketch", "start a sketch"},
			EventSketchFinished:   {"finish sketch", "finish the sketch", "stop sketch", "exit sketch"},
			EventExtrudeCreated:   {"extrude"},
			EventRevolveCreated:   {"revolve"},
			EventFilletCreated:    {"fillet"},
			EventChamferCreated:   {"chamfer"},
			EventSweepCreated:     {"sweep"},
			EventShellCreated:     {"shell"},
			EventBodyCreated:      {"body"},
			EventComponentCreated: {"component"},
		},
		CommandKeywords: map[string][]string{
			"SketchCreate":               {"sketch"},
			"SketchStop":                 {"finish sketch", "finish the sketch"},
			"SketchLine":                 {"line"},
			"SketchCircleCenterDiameter": {"circle"},
			"SketchCircleTwoPoint":       {"circle"},
			"SketchTwoPointRectangle":    {"rectangle"},
			"SketchCenterRectangle":      {"rectangle"},
			"SketchArcThreePoint":        {"arc"},
			"SketchSpline":               {"spline"},
			"SketchDimension":            {"dimension"},
			"SketchProject":              {"project"},
			"SketchOffset":               {"offset"},
			"SketchTrim":                 {"trim"},
			"FusionExtrudeCommand":       {"extrude"},
			"FusionRevolveCommand":       {"revolve"},
			"FusionFilletCommand":        {"fillet"},
			"FusionChamferCommand":       {"chamfer"},
			"FusionSweepCommand":         {"sweep"},
			"FusionShellCommand":         {"shell"},
			"ConstructionPlaneOffset":    {"offset plane", "construction plane"},
		},
	}
}
