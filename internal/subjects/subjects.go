// Package subjects holds the school-subject catalog and the per-backend
// availability rules: the free Deepseek backend only covers the natural
// science subjects, while GPT-5 covers everything including the humanities.
package subjects

// All lists every subject the platform accepts.
var All = []string{
	"Toán",
	"Ngữ văn",
	"Địa lí",
	"Giáo dục Kinh tế và Pháp luật",
	"Vật lí",
	"Hóa học",
	"Sinh học",
	"Công nghệ",
	"Tin học",
}

// DeepseekAllowed lists the subjects the Deepseek backend handles.
var DeepseekAllowed = []string{
	"Toán",
	"Vật lí",
	"Hóa học",
	"Sinh học",
	"Công nghệ",
	"Tin học",
}

// GPTOnly lists the subjects only available when GPT-5 is enabled.
var GPTOnly = []string{
	"Ngữ văn",
	"Địa lí",
	"Giáo dục Kinh tế và Pháp luật",
}

// Available returns the subject list for the active backend.
func Available(useGpt5 bool) []string {
	if useGpt5 {
		return All
	}
	return DeepseekAllowed
}

// IsAllowed reports whether subject can be handled by the active backend.
func IsAllowed(subject string, useGpt5 bool) bool {
	for _, s := range Available(useGpt5) {
		if s == subject {
			return true
		}
	}
	return false
}

// IsKnown reports whether subject is in the platform catalog at all.
func IsKnown(subject string) bool {
	for _, s := range All {
		if s == subject {
			return true
		}
	}
	return false
}
