// Package blur computes the background geometry of the frosted-glass form and
// renders the browser snippet that keeps it aligned with the page.
package blur

import (
	"bytes"
	"html/template"
	"math"
	"strconv"
	"strings"
)

// Point is a document position in CSS pixels.
type Point struct {
	Left float64
	Top  float64
}

// Geometry is the live layout measured in the browser.
type Geometry struct {
	// ImageWidth is the rendered width of the background image element.
	ImageWidth float64
	// Section is the document offset of the section that owns the image.
	Section Point
	// Form is the document offset of the blurred element.
	Form Point
}

// Style is the pair of inline declarations applied to the blurred element.
type Style struct {
	Size     string
	Position string
}

// Compute sizes the background to the image width and shifts it by the
// offset between the section and the blurred element, so the blurred copy
// lines up with the image behind it.
func Compute(g Geometry) Style {
	dx := g.Section.Left - g.Form.Left
	dy := g.Section.Top - g.Form.Top
	return Style{
		Size:     px(g.ImageWidth) + " auto",
		Position: px(dx) + " " + px(dy),
	}
}

func px(v float64) string {
	return formatNumber(v) + "px"
}

// formatNumber prints v like JavaScript's Number.prototype.toString: the
// shortest round-tripping digits, in exponent form below 1e-6 and from 1e21.
func formatNumber(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "Infinity"
	case math.IsInf(v, -1):
		return "-Infinity"
	case v == 0:
		return "0"
	}

	if abs := math.Abs(v); abs >= 1e21 || abs < 1e-6 {
		// Go writes "1.5e-07"; JavaScript writes "1.5e-7".
		mant, exp, _ := strings.Cut(strconv.FormatFloat(v, 'e', -1, 64), "e")
		return mant + "e" + exp[:1] + strings.TrimLeft(exp[1:], "0")
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Selectors name the three elements the snippet measures.
type Selectors struct {
	Image   string
	Section string
	Target  string
}

// DefaultSelectors match the stock page markup.
var DefaultSelectors = Selectors{
	Image:   ".blur__back",
	Section: ".reviews",
	Target:  ".blur-form",
}

var snippet = template.Must(template.New("blur").Parse(`<script>
(function () {
  function offset(el) {
    var r = el.getBoundingClientRect();
    return { left: r.left + window.pageXOffset, top: r.top + window.pageYOffset };
  }
  function blur() {
    var image = document.querySelector({{.Image}});
    var section = document.querySelector({{.Section}});
    var target = document.querySelector({{.Target}});
    if (!image || !section || !target) {
      return;
    }
    var width = parseFloat(window.getComputedStyle(image).width) || 0;
    var s = offset(section), t = offset(target);
    target.style.backgroundSize = width + "px auto";
    target.style.backgroundPosition = (s.left - t.left) + "px " + (s.top - t.top) + "px";
  }
  if (document.readyState === "loading") {
    document.addEventListener("DOMContentLoaded", blur);
  } else {
    blur();
  }
  window.addEventListener("resize", blur);
})();
</script>`))

// Script renders the snippet for sel. It runs once the document is ready and
// again on every resize.
func Script(sel Selectors) (template.HTML, error) {
	var buf bytes.Buffer
	if err := snippet.Execute(&buf, sel); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
