package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricescout/backend/internal/domain"
)

func testClient() *Client {
	return NewClient(ClientConfig{UserAgent: "test-agent/1.0", RequestsPerSecond: 100, Burst: 10})
}

const duckDuckGoPage = `<html><body><div class="results">
<div class="result results_links web-result">
  <h2 class="result__title"><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.ksp.co.il%2Fitem%2F123&amp;rut=abc">Apple iPhone 15 Pro 128GB</a></h2>
  <a class="result__snippet" href="#">מחיר ₪4,299 במלאי</a>
</div>
<div class="result result--ad">
  <h2 class="result__title"><a class="result__a" href="https://ads.example/x">Sponsored</a></h2>
</div>
<div class="result results_links web-result">
  <h2 class="result__title"><a class="result__a" href="https://shop.example/p/2">iPhone 15 Pro case</a></h2>
</div>
</div></body></html>`

func TestDuckDuckGo_Shopping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/html/", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "iPhone 15 Pro price buy מחיר", r.PostForm.Get("q"))
		assert.Equal(t, "il-he", r.PostForm.Get("kl"))
		w.Write([]byte(duckDuckGoPage))
	}))
	defer server.Close()

	d := NewDuckDuckGo(testClient(), server.URL, "il-he", 10)
	result, err := d.Attempt(context.Background(), "iPhone 15 Pro", domain.QueryTypeShopping)

	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)
	first := result.Candidates[0]
	assert.Equal(t, "Apple iPhone 15 Pro 128GB", first.Title)
	assert.Equal(t, "https://www.ksp.co.il/item/123", first.URL)
	assert.Equal(t, "ksp.co.il", first.Store)
	assert.Equal(t, "מחיר ₪4,299 במלאי", first.Snippet)
	assert.Equal(t, "https://shop.example/p/2", result.Candidates[1].URL)
}

func TestDuckDuckGo_ResultLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(duckDuckGoPage))
	}))
	defer server.Close()

	d := NewDuckDuckGo(testClient(), server.URL, "", 1)
	result, err := d.Attempt(context.Background(), "iPhone 15 Pro", domain.QueryTypeWeb)

	require.NoError(t, err)
	assert.Len(t, result.Candidates, 1)
}

func TestDuckDuckGo_Images(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Write([]byte(`{"Heading":"iPhone 15 Pro","Image":"https://img.example/main.jpg","AbstractURL":"https://en.wikipedia.org/wiki/IPhone_15_Pro",
"RelatedTopics":[{"Text":"iPhone 15","FirstURL":"https://duckduckgo.com/iPhone_15","Icon":{"URL":"https://img.example/15.jpg"}},{"Text":"no icon","Icon":{"URL":""}}]}`))
	}))
	defer server.Close()

	d := NewDuckDuckGo(testClient(), server.URL, "", 10)
	result, err := d.Attempt(context.Background(), "iPhone 15 Pro", domain.QueryTypeImage)

	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "https://img.example/main.jpg", result.Candidates[0].ImageURL)
	assert.Equal(t, "https://img.example/15.jpg", result.Candidates[1].ImageURL)
}

func TestDuckDuckGo_AnomalyPageIsBlocked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div class="anomaly-modal__title">Unfortunately, bots use DuckDuckGo too.</div></body></html>`))
	}))
	defer server.Close()

	d := NewDuckDuckGo(testClient(), server.URL, "", 10)
	_, err := d.Attempt(context.Background(), "iPhone 15 Pro", domain.QueryTypeWeb)

	assert.ErrorIs(t, err, domain.ErrProviderBlocked)
}

func TestGoogle_Web(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "15", r.URL.Query().Get("num"))
		assert.Equal(t, "he", r.URL.Query().Get("hl"))
		assert.Equal(t, "il", r.URL.Query().Get("gl"))
		w.Write([]byte(`<html><body>
<div class="g"><a href="https://www.ksp.co.il/item/1"><h3>Apple iPhone 15 Pro - KSP</h3></a><div class="VwiC3b">₪4,299 במלאי</div></div>
<div class="g"><a href="https://maps.google.com/x"><h3>Maps</h3></a></div>
</body></html>`))
	}))
	defer server.Close()

	g := NewGoogle(testClient(), server.URL, "il", "he", 10)
	result, err := g.Attempt(context.Background(), "iPhone 15 Pro", domain.QueryTypeWeb)

	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "Apple iPhone 15 Pro - KSP", result.Candidates[0].Title)
	assert.Equal(t, "₪4,299 במלאי", result.Candidates[0].Snippet)
	assert.Equal(t, "ksp.co.il", result.Candidates[0].Store)
}

func TestGoogle_Shopping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "shop", r.URL.Query().Get("tbm"))
		w.Write([]byte(`<html><body>
<div class="sh-dgr__content">
  <a href="/url?url=https://store.example/p/1&amp;sa=U"><img src="https://img.example/1.jpg"></a>
  <h3 class="tAxDx">Apple iPhone 15 Pro 256GB</h3>
  <span class="a8Pemb">₪4,899.00</span>
  <div class="aULzUe">Store Example</div>
</div>
<div class="sh-dgr__content"><span class="a8Pemb">₪1</span></div>
</body></html>`))
	}))
	defer server.Close()

	g := NewGoogle(testClient(), server.URL, "il", "he", 10)
	result, err := g.Attempt(context.Background(), "iPhone 15 Pro", domain.QueryTypeShopping)

	require.NoError(t, err)
	require.Len(t, result.Candidates, 1, "items without a title are skipped")
	c := result.Candidates[0]
	assert.Equal(t, "Apple iPhone 15 Pro 256GB", c.Title)
	assert.Equal(t, "₪4,899.00", c.PriceText)
	assert.Equal(t, "https://store.example/p/1", c.URL)
	assert.Equal(t, "Store Example", c.Store)
	assert.Equal(t, "https://img.example/1.jpg", c.ImageURL)
}

func TestGoogle_SorryRedirectIsBlocked(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/sorry/index?continue=x", http.StatusFound)
	})
	mux.HandleFunc("/sorry/index", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><form id="captcha-form"></form></body></html>`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	g := NewGoogle(testClient(), server.URL, "", "", 10)
	_, err := g.Attempt(context.Background(), "iPhone 15 Pro", domain.QueryTypeWeb)

	assert.ErrorIs(t, err, domain.ErrProviderBlocked)
}

func TestBing_Web(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "iPhone 15 Pro buy price מחיר", r.URL.Query().Get("q"))
		w.Write([]byte(`<html><body><ol id="b_results">
<li class="b_algo"><h2><a href="https://www.zap.co.il/model?id=1">iPhone 15 Pro מחירים</a></h2><div class="b_caption"><p>החל מ-₪3,999</p></div></li>
<li class="b_ad"><h2><a href="https://ads.example">ad</a></h2></li>
</ol></body></html>`))
	}))
	defer server.Close()

	b := NewBing(testClient(), server.URL, 10)
	result, err := b.Attempt(context.Background(), "iPhone 15 Pro", domain.QueryTypeShopping)

	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "iPhone 15 Pro מחירים", result.Candidates[0].Title)
	assert.Equal(t, "החל מ-₪3,999", result.Candidates[0].Snippet)
	assert.Equal(t, "zap.co.il", result.Candidates[0].Store)
}

func TestBing_Images(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/search", r.URL.Path)
		w.Write([]byte(`<html><body>
<a class="iusc" m='{"t":"iPhone 15 Pro","murl":"https://img.example/a.jpg","purl":"https://shop.example/p","turl":"https://tse.example/t"}'></a>
</body></html>`))
	}))
	defer server.Close()

	b := NewBing(testClient(), server.URL, 10)
	result, err := b.Attempt(context.Background(), "iPhone 15 Pro", domain.QueryTypeImage)

	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "https://img.example/a.jpg", result.Candidates[0].ImageURL)
	assert.Equal(t, "https://shop.example/p", result.Candidates[0].URL)
}

func TestBing_EmptyResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><ol id="b_results"></ol></body></html>`))
	}))
	defer server.Close()

	b := NewBing(testClient(), server.URL, 10)
	_, err := b.Attempt(context.Background(), "iPhone 15 Pro", domain.QueryTypeWeb)

	assert.ErrorIs(t, err, domain.ErrEmptyResult)
}

func TestSearXNG(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		if r.URL.Query().Get("categories") == "images" {
			w.Write([]byte(`{"results":[{"title":"img","url":"https://shop.example/p","img_src":"https://img.example/x.jpg"}]}`))
			return
		}
		w.Write([]byte(`{"results":[
{"title":"iPhone 15 Pro","url":"https://www.ivory.co.il/catalog/1","content":"₪4,590"},
{"title":"iPhone 15 Pro review","url":"https://blog.example/r","content":"great phone"}]}`))
	}))
	defer server.Close()

	s := NewSearXNG(testClient(), server.URL+"/", "he", 1)

	t.Run("web", func(t *testing.T) {
		result, err := s.Attempt(context.Background(), "iPhone 15 Pro", domain.QueryTypeWeb)
		require.NoError(t, err)
		require.Len(t, result.Candidates, 1)
		assert.Equal(t, "ivory.co.il", result.Candidates[0].Store)
		assert.Equal(t, "₪4,590", result.Candidates[0].Snippet)
	})

	t.Run("images", func(t *testing.T) {
		result, err := s.Attempt(context.Background(), "iPhone 15 Pro", domain.QueryTypeImage)
		require.NoError(t, err)
		require.Len(t, result.Candidates, 1)
		assert.Equal(t, "https://img.example/x.jpg", result.Candidates[0].ImageURL)
	})
}

func TestSearXNG_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer server.Close()

	s := NewSearXNG(testClient(), server.URL, "", 10)
	_, err := s.Attempt(context.Background(), "iPhone", domain.QueryTypeWeb)

	assert.ErrorIs(t, err, domain.ErrProviderFailure)
}

func TestNewProviders(t *testing.T) {
	opts := Options{
		NumResults: 10,
		Providers: map[string]ProviderSettings{
			NameSearXNG: {BaseURL: "http://searx.local"},
		},
	}

	t.Run("builds in order and skips duplicates", func(t *testing.T) {
		providers, err := NewProviders([]string{NameGoogle, NameDuckDuckGo, NameGoogle, NameSearXNG}, opts)
		require.NoError(t, err)
		require.Len(t, providers, 3)
		assert.Equal(t, NameGoogle, providers[0].Name())
		assert.Equal(t, NameDuckDuckGo, providers[1].Name())
		assert.Equal(t, NameSearXNG, providers[2].Name())
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := NewProviders([]string{"altavista"}, opts)
		assert.ErrorIs(t, err, domain.ErrUnknownProvider)
	})

	t.Run("searxng needs an instance", func(t *testing.T) {
		_, err := NewProvider(NameSearXNG, Options{})
		assert.ErrorIs(t, err, domain.ErrUnknownProvider)
	})
}
