package notifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"

	"MarketPulse/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const hourlyTemplate = "BITCOIN MAKING MOVES\n\nBTC IS NOW: ${{.Price}} {{.Marker}}\n\n1H CHANGE: \n{{.Change}} USD \n({{.Percent}}%)\n\n#Bitcoin #BTC #Crypto"

func change(start, end string) model.ChangeResult {
	s := decimal.RequireFromString(start)
	e := decimal.RequireFromString(end)
	diff := e.Sub(s)
	return model.ChangeResult{
		StartPrice:    s,
		EndPrice:      e,
		AbsoluteDiff:  diff,
		PercentChange: diff.Mul(decimal.NewFromInt(100)).Div(s),
	}
}

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0.00"},
		{"1.005", "1.01"},
		{"999.994", "999.99"},
		{"1234.5", "1,234.50"},
		{"84210.123", "84,210.12"},
		{"-1234.5", "-1,234.50"},
		{"1234567.891", "1,234,567.89"},
		{"-0.001", "0.00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatMoney(decimal.RequireFromString(tt.in)), tt.in)
	}
}

func TestFormatSigned(t *testing.T) {
	assert.Equal(t, "+12.00", FormatSigned(decimal.NewFromInt(12)))
	assert.Equal(t, "+0.00", FormatSigned(decimal.Zero))
	assert.Equal(t, "-3.41", FormatSigned(decimal.RequireFromString("-3.4149")))
}

func TestComposeAlert_RoundTrip(t *testing.T) {
	c, err := NewComposer("hourly", hourlyTemplate)
	require.NoError(t, err)

	ch := change("75000", "84000")
	mv := model.Movement{Tier: model.TierSurging, Marker: "⚡"}
	text, err := c.ComposeAlert("BTC", ch, mv)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(text, "BITCOIN MAKING MOVES"))
	assert.Contains(t, text, "⚡")

	re := regexp.MustCompile(`BTC IS NOW: \$([\d,.]+) .*\n\n1H CHANGE: \n([-\d,.]+) USD \n\(([+-][\d.]+)%\)`)
	m := re.FindStringSubmatch(text)
	require.Len(t, m, 4, text)

	parse := func(s string) decimal.Decimal {
		return decimal.RequireFromString(strings.ReplaceAll(s, ",", ""))
	}
	assert.True(t, ch.EndPrice.Round(2).Equal(parse(m[1])))
	assert.True(t, ch.AbsoluteDiff.Round(2).Equal(parse(m[2])))
	assert.True(t, ch.PercentChange.Round(2).Equal(parse(m[3])))
	assert.Equal(t, "+12.00", m[3])
}

func TestComposeAlert_NegativeChange(t *testing.T) {
	c, err := NewComposer("weekly", "{{.Symbol}} {{.Start}} -> {{.Price}} {{.Change}} ({{.Percent}}%) {{.Tier}}")
	require.NoError(t, err)

	text, err := c.ComposeAlert("BTC", change("1000", "950"), model.Movement{Tier: model.TierFalling, Marker: "📉"})
	require.NoError(t, err)
	assert.Equal(t, "BTC 1,000.00 -> 950.00 -50.00 (-5.00%) FALLING", text)
}

func TestComposer_Errors(t *testing.T) {
	_, err := NewComposer("bad", "{{.Price")
	assert.Error(t, err)

	c, err := NewComposer("unknown", "{{.Nope}}")
	require.NoError(t, err)
	_, err = c.ComposeAlert("BTC", change("1", "2"), model.Movement{})
	assert.Error(t, err)
}

func TestComposeDigest(t *testing.T) {
	c, err := NewComposer("eod", "EOD PERFORMANCE\n\n{{range .Lines}}{{.}}\n{{end}}\n#Stocks #Investing")
	require.NoError(t, err)

	lines := []string{
		FormatDigestLine("SPY", ptr(change("100", "101.234")), model.Movement{Tier: model.TierRising, Marker: "⬆️"}),
		FormatDigestLine("QQQ", nil, model.Movement{}),
	}
	text, err := c.ComposeDigest(lines)
	require.NoError(t, err)
	assert.Equal(t, "EOD PERFORMANCE\n\n$SPY: $101.23 (+1.23%) ⬆️\nQQQ: No Data\n\n#Stocks #Investing", text)
}

func ptr(c model.ChangeResult) *model.ChangeResult { return &c }

func TestCredentials(t *testing.T) {
	t.Setenv("API_KEY", "k")
	t.Setenv("API_KEY_SECRET", "")
	t.Setenv("ACCESS_TOKEN", "t")
	t.Setenv("ACCESS_TOKEN_SECRET", "")

	c, err := LoadCredentials()
	require.NoError(t, err)
	assert.Equal(t, "k", c.APIKey)
	assert.Equal(t, []string{"API_KEY_SECRET", "ACCESS_TOKEN_SECRET"}, c.Missing())

	var missing *MissingCredentialsError
	require.ErrorAs(t, c.Validate(), &missing)
	assert.Equal(t, "missing required credentials: API_KEY_SECRET, ACCESS_TOKEN_SECRET", missing.Error())

	full := Credentials{APIKey: "a", APIKeySecret: "b", AccessToken: "c", AccessTokenSecret: "d"}
	assert.NoError(t, full.Validate())
}

func TestTwitterPublisher_MissingCredentialsMakesNoRequest(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	p := NewTwitterPublisher(Credentials{APIKey: "a"}, "", 0)
	p.UploadURL, p.TweetURL = srv.URL+"/upload", srv.URL+"/tweets"

	_, err := p.Publish(context.Background(), model.PublishRequest{Text: "hi", Image: []byte("png")})
	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, "credentials", pubErr.Stage)
	var missing *MissingCredentialsError
	assert.ErrorAs(t, err, &missing)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func twitterServer(t *testing.T, tweetStatus int) (*httptest.Server, *[]string) {
	t.Helper()
	var order []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "OAuth "))
		switch r.URL.Path {
		case "/upload":
			order = append(order, "upload")
			if f, _, err := r.FormFile("media"); assert.NoError(t, err) {
				data, _ := io.ReadAll(f)
				assert.Equal(t, "png-bytes", string(data))
			}
			fmt.Fprint(w, `{"media_id":710511363345354753,"media_id_string":"710511363345354753"}`)
		case "/tweets":
			order = append(order, "tweet")
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, "hello", gjson.GetBytes(body, "text").String())
			w.WriteHeader(tweetStatus)
			if tweetStatus == http.StatusCreated {
				ids := gjson.GetBytes(body, "media.media_ids").Array()
				if len(ids) > 0 {
					assert.Equal(t, "710511363345354753", ids[0].String())
				}
				fmt.Fprint(w, `{"data":{"id":"1445880548472328192","text":"hello"}}`)
				return
			}
			fmt.Fprint(w, `{"title":"Forbidden"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &order
}

func testCreds() Credentials {
	return Credentials{APIKey: "a", APIKeySecret: "b", AccessToken: "c", AccessTokenSecret: "d"}
}

func TestTwitterPublisher_PublishWithImage(t *testing.T) {
	srv, order := twitterServer(t, http.StatusCreated)
	p := NewTwitterPublisher(testCreds(), "", 0)
	p.UploadURL, p.TweetURL = srv.URL+"/upload", srv.URL+"/tweets"

	id, err := p.Publish(context.Background(), model.PublishRequest{Text: "hello", Image: []byte("png-bytes")})
	require.NoError(t, err)
	assert.Equal(t, "1445880548472328192", id)
	assert.Equal(t, []string{"upload", "tweet"}, *order)
}

func TestTwitterPublisher_TextOnly(t *testing.T) {
	srv, order := twitterServer(t, http.StatusCreated)
	p := NewTwitterPublisher(testCreds(), "", 0)
	p.UploadURL, p.TweetURL = srv.URL+"/upload", srv.URL+"/tweets"

	_, err := p.Publish(context.Background(), model.PublishRequest{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, []string{"tweet"}, *order)
}

func TestTwitterPublisher_PostRejected(t *testing.T) {
	srv, _ := twitterServer(t, http.StatusForbidden)
	p := NewTwitterPublisher(testCreds(), "", 0)
	p.UploadURL, p.TweetURL = srv.URL+"/upload", srv.URL+"/tweets"

	_, err := p.Publish(context.Background(), model.PublishRequest{Text: "hello", Image: []byte("png-bytes")})
	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Equal(t, "post", pubErr.Stage)
	assert.Contains(t, err.Error(), "403")
}

func TestTelegramNotifier_Publish(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/botTOKEN/sendPhoto":
			assert.Equal(t, "42", r.FormValue("chat_id"))
			assert.Equal(t, "caption text", r.FormValue("caption"))
			_, _, err := r.FormFile("photo")
			assert.NoError(t, err)
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":7}}`)
		case "/botTOKEN/sendMessage":
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, "42", gjson.GetBytes(body, "chat_id").String())
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":8}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tg := NewTelegramNotifier("TOKEN", "42", "", 0, zap.NewNop())
	tg.BaseURL = srv.URL

	id, err := tg.Publish(context.Background(), model.PublishRequest{Text: "caption text", Image: []byte("png")})
	require.NoError(t, err)
	assert.Equal(t, "7", id)

	id, err = tg.Publish(context.Background(), model.PublishRequest{Text: "plain"})
	require.NoError(t, err)
	assert.Equal(t, "8", id)
}

func TestTelegramNotifier_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"ok":false,"description":"chat not found"}`)
	}))
	defer srv.Close()

	tg := NewTelegramNotifier("TOKEN", "42", "", 0, zap.NewNop())
	tg.BaseURL = srv.URL

	_, err := tg.Publish(context.Background(), model.PublishRequest{Text: "x"})
	var pubErr *PublishError
	require.ErrorAs(t, err, &pubErr)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramNotifier_PollDispatchesCommands(t *testing.T) {
	var replies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/botTOKEN/getUpdates":
			fmt.Fprint(w, `{"ok":true,"result":[
				{"update_id":10,"message":{"chat":{"id":42},"text":" /jobs "}},
				{"update_id":11,"message":{"chat":{"id":99},"text":"/run x"}}]}`)
		case "/botTOKEN/sendMessage":
			body, _ := io.ReadAll(r.Body)
			replies = append(replies, gjson.GetBytes(body, "text").String())
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":1}}`)
		}
	}))
	defer srv.Close()

	tg := NewTelegramNotifier("TOKEN", "42", "", 0, zap.NewNop())
	tg.BaseURL = srv.URL

	var got []string
	next, err := tg.poll(context.Background(), srv.Client(), 0, func(_ context.Context, cmd string) string {
		got = append(got, cmd)
		return "ack " + cmd
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), next)
	assert.Equal(t, []string{"/jobs"}, got)
	assert.Equal(t, []string{"ack /jobs"}, replies)
}

func TestDryRunPublisher(t *testing.T) {
	d := NewDryRunPublisher(zap.NewNop())
	id, err := d.Publish(context.Background(), model.PublishRequest{Text: "x"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "dryrun-"))
	assert.Len(t, d.Published(), 1)
	assert.Equal(t, "dryrun", d.Name())
}
