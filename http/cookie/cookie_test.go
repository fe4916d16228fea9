package cookie

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCookie(t *testing.T) {
	t.Run("bare", func(t *testing.T) {
		require.Equal(t, "session=abc", New("session", "abc").String())
	})

	t.Run("all attributes", func(t *testing.T) {
		c := Build("session", "abc").
			Path("/").
			Domain("example.com").
			Expires(time.Date(2015, time.October, 21, 7, 28, 0, 0, time.UTC)).
			MaxAge(3600).
			Secure(true).
			HttpOnly(true).
			SameSite(SameSiteLax).
			Cookie()

		require.Equal(t,
			"session=abc; Expires=Wed, 21 Oct 2015 07:28:00 GMT; Domain=example.com; Path=/; "+
				"Max-Age=3600; Secure; HttpOnly; SameSite=Lax",
			c.String(),
		)
	})

	t.Run("negative max age", func(t *testing.T) {
		c := Build("a", "b").MaxAge(-1).Cookie()
		require.Equal(t, "a=b; Max-Age=0", c.String())
	})

	t.Run("sanitized", func(t *testing.T) {
		require.Equal(t, "a b=c d", New("a;b", "c\r\nd").String())
	})
}
