package msgcat

import "strings"

// ResultData feeds the result.* templates.
type ResultData struct {
	Kind   string
	Winner string
	Side   string
	Detail string
}

// ResultBanner renders the end-of-game line for kind.
func (c *Catalog) ResultBanner(d ResultData) string {
	d.Winner = title(d.Winner)
	d.Side = title(d.Side)
	d.Detail = strings.ReplaceAll(d.Detail, "_", " ")
	key := "result." + d.Kind
	if c == nil || !c.Has(key) {
		key = "result.unknown"
	}
	return c.RenderOr(key, d, "Game over.")
}

// RejectionHint renders a short hint for a refused input.
func (c *Catalog) RejectionHint(code, message string) string {
	key := "reject." + code
	if c == nil || !c.Has(key) {
		key = "reject.rejected"
	}
	return c.RenderOr(key, map[string]string{"Message": message}, message)
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
