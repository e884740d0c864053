package extract

import (
	"net/url"
	"strings"

	"github.com/yujeong0411/stack-note/internal/activity"
)

// Hosts checked by substring against the URL host. Order matters:
// the first bucket that matches wins, so video outranks blog, blog
// outranks docs, and so on down to the article fallback.
var (
	videoHosts = []string{
		"youtube.com", "youtu.be", "vimeo.com", "navertv.", "dailymotion.com",
		"twitch.tv", "kakao.tv", "afreecatv.com", "ted.com/talks",
		"bilibili.com", "inflearn.com", "fastcampus.co",
	}
	blogHosts = []string{
		"tistory.com", "velog.io", "medium.com", "brunch.co.kr", "naver.com",
		"notion.site", "substack.com", "hashnode.dev", "ghost.io",
		"wordpress.com", "blogspot.com", "dev.to", "teletype.in",
		"post.naver.com", "mirror.xyz",
	}
	docsHosts = []string{
		"readthedocs.io", "github.io", "docsify", "developer.", "api.",
		"python.langchain.com", "docs.", "devdocs.io", "notion.com",
		"learn.microsoft.com", "developer.mozilla.org", "pkg.go.dev",
		"pytorch.org", "tensorflow.org", "react.dev", "vuejs.org",
	}
	newsHosts = []string{
		"news.naver.com", "bbc.com", "nytimes.com", "cnn.com",
		"reuters.com", "bloomberg.com", "theguardian.com",
		"ytn.co.kr", "mbc.co.kr", "sbs.co.kr", "kbs.co.kr",
		"hani.co.kr", "chosun.com", "joongang.co.kr", "donga.com",
	}
	forumHosts = []string{
		"reddit.com", "stackoverflow.com", "okky.kr", "ruliweb.com",
		"clien.net", "slack.com", "discord.com", "github.com/issues",
		"medium.com/@", "cafe.naver.com",
	}
)

// DetectSourceType classifies a URL into one of the source type
// buckets by host and path patterns. Unknown URLs fall back to
// article.
func DetectSourceType(rawURL string) string {
	lower := strings.ToLower(rawURL)
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = strings.ToLower(u.Host)
	}

	switch {
	case hostMatches(host, videoHosts) || strings.Contains(lower, "/video/"):
		return activity.SourceVideo
	case hostMatches(host, blogHosts) || strings.Contains(lower, "/blog/"):
		return activity.SourceBlog
	case hostMatches(host, docsHosts) ||
		strings.Contains(lower, "/docs/") || strings.Contains(lower, "/guide/"):
		return activity.SourceDocs
	case hostMatches(host, newsHosts) || strings.Contains(lower, "/news/"):
		return activity.SourceNews
	case hostMatches(host, forumHosts) || strings.Contains(lower, "/questions/"):
		return activity.SourceForum
	default:
		return activity.SourceArticle
	}
}

func hostMatches(host string, patterns []string) bool {
	if host == "" {
		return false
	}
	for _, p := range patterns {
		if strings.Contains(host, p) {
			return true
		}
	}
	return false
}
