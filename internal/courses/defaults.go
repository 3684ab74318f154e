package courses

// DefaultCourses are the courses of the medicine leaderboard in display order.
var DefaultCourses = []string{
	"Anatomía",
	"Histología",
	"Embriología",
	"Bioquímica",
	"Fisiología",
	"Fisiopatología",
	"Patología",
	"Farmacología",
	"Microbiología",
	"Parasitología",
}

// DefaultKeywords are the official deck names of each default course. Exact matches only,
// since "Fisiología" would otherwise also claim "Fisiopatología" decks.
var DefaultKeywords = map[string][]string{
	"Anatomía":       {"=Anatomía humana Pró", "=Anatomia humana Pro"},
	"Histología":     {"=Histología Ross", "=Histologia Ross"},
	"Embriología":    {"=Embriología humana Moore", "=Embriologia humana Moore"},
	"Bioquímica":     {"=Bioquímica Harper", "=Bioquimica Harper"},
	"Fisiología":     {"=Fisiología humana Guyton", "=Fisiologia humana Guyton"},
	"Fisiopatología": {"=Fisiopatología Uribe", "=Fisiopatologia Uribe"},
	"Patología":      {"=Patología general Robbins", "=Patologia general Robbins"},
	"Farmacología":   {"=Farmacología médica Goodman", "=Farmacologia medica Goodman"},
	"Microbiología":  {"=Microbiología médica Murray", "=Microbiologia medica Murray"},
	"Parasitología":  {"=Parasitología médica Becerril", "=Parasitologia medica Becerril"},
}
