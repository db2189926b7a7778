package registry

// builtin is the shortcut table shipped with the daemon.
var builtin = map[string]string{
	// Faces
	":smile:":          "😄",
	":smirk:":          "😏",
	":grin:":           "😁",
	":joy:":            "😂",
	":rofl:":           "🤣",
	":wink:":           "😉",
	":blush:":          "😊",
	":heart_eyes:":     "😍",
	":kiss:":           "😘",
	":thinking:":       "🤔",
	":neutral:":        "😐",
	":expressionless:": "😑",
	":unamused:":       "😒",
	":sweat:":          "😓",
	":pensive:":        "😔",
	":confused:":       "😕",
	":upside_down:":    "🙃",
	":sob:":            "😭",
	":cry:":            "😢",
	":angry:":          "😠",
	":rage:":           "😡",
	":scream:":         "😱",
	":sleeping:":       "😴",
	":sunglasses:":     "😎",
	":nerd:":           "🤓",
	":shush:":          "🤫",
	":zany:":           "🤪",
	":party:":          "🥳",
	":skull:":          "💀",
	":clown:":          "🤡",

	// Gestures
	":+1:":           "👍",
	":thumbsup:":     "👍",
	":-1:":           "👎",
	":thumbsdown:":   "👎",
	":clap:":         "👏",
	":wave:":         "👋",
	":pray:":         "🙏",
	":muscle:":       "💪",
	":ok_hand:":      "👌",
	":raised_hands:": "🙌",
	":eyes:":         "👀",
	":shrug:":        "🤷",
	":facepalm:":     "🤦",

	// Hearts and symbols
	":heart:":        "❤️",
	":broken_heart:": "💔",
	":sparkles:":     "✨",
	":fire:":         "🔥",
	":star:":         "⭐",
	":check:":        "✅",
	":x:":            "❌",
	":warning:":      "⚠️",
	":100:":          "💯",
	":tada:":         "🎉",
	":rocket:":       "🚀",
	":bulb:":         "💡",
	":zap:":          "⚡",
	":bug:":          "🐛",
	":coffee:":       "☕",
	":beer:":         "🍺",
	":pizza:":        "🍕",
	":cake:":         "🍰",
	":sun:":          "☀️",
	":rainbow:":      "🌈",
	":cat:":          "🐱",
	":dog:":          "🐶",
	":unicorn:":      "🦄",
	":poop:":         "💩",

	// Emoticons
	":)":  "🙂",
	":-)": "🙂",
	":(":  "🙁",
	":-(": "🙁",
	":D":  "😃",
	";)":  "😉",
	":P":  "😛",
	":O":  "😮",
	"<3":  "❤️",
	"</3": "💔",
}

// Default returns a registry holding the built-in shortcut table.
func Default() *Registry {
	return MustFromMap(builtin)
}
