package model

// StageTemplate is a predefined stage a task can be built from.
type StageTemplate struct {
	Key  string
	Name string
}

var StageTemplates = []StageTemplate{
	{"idea", "Idea writing"},
	{"research", "Research and information gathering"},
	{"brief", "Brief preparation"},
	{"script", "Script writing"},
	{"copy", "Copywriting"},
	{"storyboard", "Storyboard"},
	{"coordination", "Coordination and preparation"},
	{"followup", "Production follow-up"},
	{"shooting", "Video shooting"},
	{"photo", "Photography"},
	{"design", "Design"},
	{"layout", "Layout"},
	{"graphics", "Graphics / motion"},
	{"animation", "Animation"},
	{"voice", "Voice recording"},
	{"soundfx", "Sound effects and mixing"},
	{"subtitles", "Subtitles"},
	{"editing", "Video editing"},
	{"review", "Internal review"},
	{"publish", "Publishing"},
}

// StageName returns the template name for key, or key itself when unknown.
func StageName(key string) string {
	for _, t := range StageTemplates {
		if t.Key == key {
			return t.Name
		}
	}
	return key
}
