package cookie

import (
	"strings"

	"github.com/indigo-web/strand/kv"
)

// Jar is a key-value storage for cookies. Key-value pairs consists of strings,
// not cookie.Cookie, as it would lead to space wasting and require a separate
// data structure
type Jar = *kv.Storage

func NewJar() Jar {
	return kv.New()
}

// Parse parses cookies, received from a user-agent. These are basically key-value pairs,
// so the function isn't applicable for Set-Cookie values. Pairs without an equality sign
// are skipped.
func Parse(jar Jar, data string) {
	for len(data) > 0 {
		var pair string

		if semicolon := strings.IndexByte(data, ';'); semicolon != -1 {
			pair, data = data[:semicolon], data[semicolon+1:]
		} else {
			pair, data = data, ""
		}

		pair = strings.TrimLeft(pair, " \t")
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}

		jar.Add(key, value)
	}
}
