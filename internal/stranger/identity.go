package stranger

import "math/rand/v2"

// DefaultUserAgents is the identity pool used when Options.UserAgents is empty.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (X11; U; Linux i686; en-US; rv:1.9.2.10) Gecko/20100915 Ubuntu/10.04 (lucid) Firefox/3.6.10",
	"Mozilla/5.0 (X11; U; Linux i686; en-US) AppleWebKit/534.16 (KHTML, like Gecko) Chrome/10.0.648.45 Safari/534.16",
}

const randIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// randomID returns 8 characters drawn uniformly from uppercase letters and
// digits, e.g. "4B5MP9J6".
func randomID() string {
	b := make([]byte, 8)
	for i := range b {
		b[i] = randIDAlphabet[rand.IntN(len(randIDAlphabet))]
	}
	return string(b)
}

func pickUserAgent(pool []string) string {
	if len(pool) == 0 {
		pool = DefaultUserAgents
	}
	return pool[rand.IntN(len(pool))]
}
