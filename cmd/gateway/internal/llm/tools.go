package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/news"
	"github.com/Matrixxboy/MatrixAlphaForge/cmd/gateway/internal/quotes"
	"github.com/Matrixxboy/MatrixAlphaForge/pkg/models"
)

const (
	toolPrice   = "get_stock_price"
	toolNews    = "get_stock_news"
	toolAnalyze = "analyze_stock"

	newsPerTool = 3
)

type QuoteLookup interface {
	FetchQuote(ctx context.Context, symbol string) (models.Quote, error)
}

type NewsLookup interface {
	Fetch(ctx context.Context, query string) ([]news.Article, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, symbol string) (quotes.Analysis, error)
}

// Tools are the backends the assistant may call. A nil backend hides its tool from the model.
type Tools struct {
	Quotes  QuoteLookup
	News    NewsLookup
	Analyst Analyzer
}

type tool struct {
	def openai.FunctionDefinition
	run func(ctx context.Context, ticker string) string
}

type toolbox struct {
	byName map[string]tool
	order  []string
}

func newToolbox(t Tools) *toolbox {
	tb := &toolbox{byName: make(map[string]tool)}
	if t.Quotes != nil {
		tb.add(toolPrice, "Get the latest price and day change of a stock or index.", func(ctx context.Context, ticker string) string {
			q, err := t.Quotes.FetchQuote(ctx, ticker)
			if err != nil {
				return fmt.Sprintf("Could not fetch price for %s: %v", ticker, err)
			}
			q.Symbol = ticker
			u := models.NewQuoteUpdate(q)
			return fmt.Sprintf("The current price of %s is ₹%.2f (%s today)", ticker, u.Price, u.Change)
		})
	}
	if t.News != nil {
		tb.add(toolNews, "Get the latest news headlines for a stock.", func(ctx context.Context, ticker string) string {
			articles, err := t.News.Fetch(ctx, ticker+" stock news")
			if err != nil {
				return fmt.Sprintf("Error fetching news for %s: %v", ticker, err)
			}
			if len(articles) == 0 {
				return fmt.Sprintf("No recent news found for %s.", ticker)
			}
			var b strings.Builder
			b.WriteString("Here is the latest news:\n")
			for _, a := range articles[:min(len(articles), newsPerTool)] {
				fmt.Fprintf(&b, "- [%s](%s) (%s)\n", a.Title, a.Link, a.Source)
			}
			return b.String()
		})
	}
	if t.Analyst != nil {
		tb.add(toolAnalyze, "Get RSI(14), the 50-day moving average and a BUY/SELL/HOLD signal for a stock.", func(ctx context.Context, ticker string) string {
			a, err := t.Analyst.Analyze(ctx, ticker)
			if err != nil {
				return fmt.Sprintf("Error analyzing %s: %v", ticker, err)
			}
			b, err := json.Marshal(a)
			if err != nil {
				return fmt.Sprintf("Error analyzing %s: %v", ticker, err)
			}
			return string(b)
		})
	}
	return tb
}

func (tb *toolbox) add(name, description string, run func(context.Context, string) string) {
	tb.byName[name] = tool{
		def: openai.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"ticker": {
						Type:        jsonschema.String,
						Description: "Ticker symbol, e.g. RELIANCE, TCS.NS or ^NSEI",
					},
				},
				Required: []string{"ticker"},
			},
		},
		run: run,
	}
	tb.order = append(tb.order, name)
}

func (tb *toolbox) definitions() []openai.Tool {
	if len(tb.order) == 0 {
		return nil
	}
	defs := make([]openai.Tool, 0, len(tb.order))
	for _, name := range tb.order {
		def := tb.byName[name].def
		defs = append(defs, openai.Tool{Type: openai.ToolTypeFunction, Function: &def})
	}
	return defs
}

// run executes a tool call. The output is always text for the model; ok is false when the
// tool does not exist.
func (tb *toolbox) run(ctx context.Context, name, arguments string) (string, bool) {
	t, found := tb.byName[name]
	if !found {
		return fmt.Sprintf("Tool '%s' not found.", name), false
	}

	var args struct {
		Ticker string `json:"ticker"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil || strings.TrimSpace(args.Ticker) == "" {
		return fmt.Sprintf("Tool '%s' needs a ticker argument.", name), true
	}
	return t.run(ctx, exchangeTicker(args.Ticker)), true
}

// exchangeTicker upper-cases a ticker and defaults bare symbols to NSE: "tcs" -> "TCS.NS".
// Indices (^NSEI) and symbols that already carry an exchange suffix are left as they are.
func exchangeTicker(ticker string) string {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if strings.HasPrefix(ticker, "^") || strings.Contains(ticker, ".") {
		return ticker
	}
	return ticker + ".NS"
}
