package headless

// blockedPatterns keeps the browser from downloading resources extraction
// never reads: images, fonts, media, and the usual tracking/ad hosts.
var blockedPatterns = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg", "*.ico",
	"*.woff", "*.woff2", "*.ttf", "*.otf", "*.eot",
	"*.mp4", "*.webm", "*.mp3", "*.avi", "*.mov",
	"*googletagmanager.com*",
	"*google-analytics.com*",
	"*doubleclick.net*",
	"*googlesyndication.com*",
	"*adservice.google.*",
	"*facebook.net*",
	"*facebook.com/tr*",
	"*hotjar.com*",
	"*yandex.ru/metrika*",
	"*criteo.com*",
	"*taboola.com*",
	"*outbrain.com*",
}
