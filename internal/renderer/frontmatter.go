package renderer

import (
	"bytes"
	"errors"

	"gopkg.in/yaml.v3"
)

// errUnclosedFrontMatter is returned when a page opens a front matter block
// and never closes it.
var errUnclosedFrontMatter = errors.New("front matter opened with --- but never closed")

// splitFrontMatter separates a leading `---` delimited YAML block from the
// page body. A page without the opening delimiter is returned unchanged.
func splitFrontMatter(content []byte) (meta []byte, body []byte, err error) {
	nl := "\n"
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		nl = "\r\n"
	}

	open := []byte("---" + nl)
	if !bytes.HasPrefix(content, open) {
		return nil, content, nil
	}

	rest := content[len(open):]
	if bytes.HasPrefix(rest, open) {
		return nil, rest[len(open):], nil
	}

	end := bytes.Index(rest, []byte(nl+"---"+nl))
	if end < 0 {
		if bytes.HasSuffix(rest, []byte(nl+"---")) {
			return rest[:len(rest)-len(nl+"---")], nil, nil
		}
		return nil, nil, errUnclosedFrontMatter
	}
	return rest[:end+len(nl)], rest[end+len(nl+"---"+nl):], nil
}

func parseFrontMatter(raw []byte) (map[string]any, error) {
	fields := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return fields, nil
	}
	if err := yaml.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, nil
}
