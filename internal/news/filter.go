package news

import (
	"regexp"
	"strings"
	"sync"
)

// Promotional titles are dropped before anything else.
var spamKeywords = []string{
	"广告", "推广", "赞助", "合作", "活动", "福利", "优惠",
}

// Titles must mention at least one of these to be kept.
var aiKeywords = []string{
	// core terms
	"ai", "人工智能", "agi", "aigc",
	// models and architectures
	"gpt", "chatgpt", "llm", "大模型", "机器学习", "深度学习", "神经网络", "rag",
	// companies
	"openai", "anthropic", "google", "谷歌", "deepmind", "meta", "microsoft", "微软",
	"nvidia", "英伟达", "baidu", "百度", "alibaba", "阿里巴巴", "tencent", "腾讯",
	"mistral", "xai",
	// products
	"claude", "sora", "gemini", "llama", "copilot", "stable diffusion", "midjourney",
	"vision pro", "ernie", "文心一言",
}

var (
	wordPatternsMu sync.Mutex
	wordPatterns   = map[string]*regexp.Regexp{}
)

// ShouldKeep reports whether a title is AI related and not promotional.
func ShouldKeep(title string) bool {
	if containsAny(title, spamKeywords) {
		return false
	}
	return containsAny(title, aiKeywords)
}

// FilterTopics keeps the candidates whose titles pass ShouldKeep.
func FilterTopics(items []Candidate) []Candidate {
	out := make([]Candidate, 0, len(items))
	for _, c := range items {
		if ShouldKeep(c.Title) {
			out = append(out, c)
		}
	}
	return out
}

// containsAny distinguishes phrases and short words so that "ai" does not match "said".
// Short ASCII keywords (<=3 bytes) need word boundaries; phrases and longer
// keywords are plain substring matches.
func containsAny(text string, keywords []string) bool {
	text = strings.ToLower(text)

	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}

		if strings.Contains(k, " ") || len(k) > 3 || !isASCII(k) {
			if strings.Contains(text, k) {
				return true
			}
			continue
		}

		if wordPattern(k).MatchString(text) {
			return true
		}
	}
	return false
}

func wordPattern(k string) *regexp.Regexp {
	wordPatternsMu.Lock()
	defer wordPatternsMu.Unlock()

	re, ok := wordPatterns[k]
	if !ok {
		// \b is ASCII-only in RE2, so CJK neighbours count as boundaries.
		re = regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`)
		wordPatterns[k] = re
	}
	return re
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}
