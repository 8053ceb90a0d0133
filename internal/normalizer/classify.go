package normalizer

import "strings"

// Role categories produced by ClassifyTitle.
const (
	RoleAI        = "AI Engineer / Researcher"
	RoleDataSci   = "Data Scientist / Analyst"
	RoleDataEng   = "Data Engineer"
	RoleDevOps    = "DevOps / SRE / Cloud Engineer"
	RoleQA        = "QA / Automation Engineer"
	RoleEmbedded  = "Embedded / Firmware Engineer"
	RoleFullstack = "Fullstack Engineer"
	RoleFrontend  = "Frontend Engineer"
	RoleBackend   = "Backend Engineer"
	RoleSoftware  = "General Software Engineer"
	RoleOthers    = "Others"
	RoleUnknown   = "Unknown"
)

// roleRule pairs a category with its keyword set. Order is the priority
// cascade: the first rule whose keywords match wins, so AI/ML stays ahead of
// the generic "python"/"engineer" fallthrough.
type roleRule struct {
	category string
	keywords []string
}

var roleRules = []roleRule{
	{RoleAI, []string{
		"ai", "artificial intelligence", "machine learning", "deep learning",
		"computer vision", "nlp", "algorithm", "人工智慧", "機器學習", "演算法",
		"深度學習", "影像識別", "自然語言", "llm", "gpt",
	}},
	{RoleDataSci, []string{
		"data scientist", "data analyst", "mining", "資料科學", "數據分析", "資料分析",
	}},
	{RoleDataEng, []string{
		"data engineer", "etl", "big data", "spark", "hadoop", "pipeline",
		"資料工程", "數據工程",
	}},
	{RoleDevOps, []string{
		"devops", "sre", "site reliability", "cloud", "aws", "gcp", "azure",
		"kubernetes", "docker", "cicd", "雲端", "系統工程", "運維",
	}},
	{RoleQA, []string{
		"qa", "test", "automation", "sdet", "測試", "自動化", "品保",
	}},
	{RoleEmbedded, []string{
		"firmware", "embedded", "driver", "fpga", "韌體", "嵌入式", "驅動",
	}},
	{RoleFullstack, []string{
		"fullstack", "full-stack", "全端",
	}},
	{RoleFrontend, []string{
		"frontend", "front-end", "react", "vue", "angular", "javascript",
		"html", "ui", "ux", "web", "前端",
	}},
	{RoleBackend, []string{
		"backend", "back-end", "server", "php", "java", "golang", "ruby",
		"node", "c#", ".net", "django", "flask", "spring", "後端",
	}},
	{RoleSoftware, []string{
		"software engineer", "developer", "programmer", "python", "c++",
		"engineer", "工程師", "軟體",
	}},
}

// ClassifyTitle maps a free-text job title to a standardized role category.
// Matching is case-insensitive substring with first-match-wins priority.
// An absent title classifies as Unknown rather than Others so missing data
// stays distinguishable from genuinely unclassifiable titles.
func ClassifyTitle(title string) string {
	if title == "" {
		return RoleUnknown
	}
	t := strings.ToLower(title)
	for _, rule := range roleRules {
		for _, kw := range rule.keywords {
			if strings.Contains(t, kw) {
				return rule.category
			}
		}
	}
	return RoleOthers
}
