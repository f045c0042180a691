package browser

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// bindingName is the window function the injected listener calls to report
// scroll and resize events back over the DevTools protocol.
const bindingName = "__readingProgressNotify"

// listenerScript runs in every new document before page scripts. It reports
// scroll and resize along with the geometry observed at that moment.
var listenerScript = fmt.Sprintf(`(() => {
  const notify = (kind) => {
    const fn = window[%[1]s];
    if (typeof fn !== "function") return;
    fn(JSON.stringify({kind, scrollY: window.scrollY, innerHeight: window.innerHeight}));
  };
  window.addEventListener("scroll", () => notify("scroll"), {passive: true});
  window.addEventListener("resize", () => notify("resize"));
})();`, jsString(bindingName))

const (
	scrollYExpr        = `window.scrollY`
	viewportHeightExpr = `window.innerHeight`
	atBottomExpr       = `window.scrollY + window.innerHeight >= document.documentElement.scrollHeight - 1`
)

// notification is the payload sent by listenerScript.
type notification struct {
	Kind        string  `json:"kind"`
	ScrollY     float64 `json:"scrollY"`
	InnerHeight float64 `json:"innerHeight"`
}

func parseNotification(payload string) (notification, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return notification{}, fmt.Errorf("decode binding payload: %w", err)
	}
	switch n.Kind {
	case "scroll", "resize":
		return n, nil
	default:
		return notification{}, fmt.Errorf("unknown notification kind %q", n.Kind)
	}
}

// jsString renders s as a JavaScript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return strconv.Quote(s)
	}
	return string(b)
}

func countByClassExpr(class string) string {
	return fmt.Sprintf(`document.getElementsByClassName(%s).length`, jsString(class))
}

func rectByClassExpr(class string, index int) string {
	return fmt.Sprintf(`(() => {
  const el = document.getElementsByClassName(%s)[%d];
  if (!el) return null;
  const r = el.getBoundingClientRect();
  return {top: r.top, bottom: r.bottom};
})()`, jsString(class), index)
}

func scrollByExpr(dy float64) string {
	return fmt.Sprintf(`window.scrollBy(0, %s)`, strconv.FormatFloat(dy, 'f', -1, 64))
}

func scrollToExpr(y float64) string {
	return fmt.Sprintf(`window.scrollTo(0, %s)`, strconv.FormatFloat(y, 'f', -1, 64))
}
