package pipeline

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/spachava753/sitebuild/internal/models"
)

// InjectResult reports what Inject changed.
type InjectResult struct {
	Doc []byte
	// Tags is the number of tags written across all anchors.
	Tags int
	// Anchors is the number of anchor pairs found.
	Anchors int
}

// Inject replaces the content between <!-- NAME:js --> and the following
// <!-- endinject --> with a script tag per .js entry of files, and likewise
// for NAME:css with stylesheet links. Entries of other types are skipped.
// Tags keep the order of files.
func Inject(doc []byte, name, prefix string, files models.VendorFileList) InjectResult {
	res := InjectResult{Doc: doc}
	for _, ext := range []string{"js", "css"} {
		re := regexp.MustCompile(`(?s)([ \t]*)(<!--\s*` + regexp.QuoteMeta(name) + `:` + ext + `\s*-->)(.*?)(<!--\s*endinject\s*-->)`)
		res.Doc = re.ReplaceAllFunc(res.Doc, func(match []byte) []byte {
			m := re.FindSubmatch(match)
			indent, open, end := string(m[1]), string(m[2]), string(m[4])
			res.Anchors++

			var sb strings.Builder
			sb.WriteString(indent + open + "\n")
			for _, f := range files {
				if strings.TrimPrefix(path.Ext(f), ".") != ext {
					continue
				}
				sb.WriteString(indent + tag(ext, path.Join(prefix, f)) + "\n")
				res.Tags++
			}
			sb.WriteString(indent + end)
			return []byte(sb.String())
		})
	}
	return res
}

func tag(ext, src string) string {
	if ext == "css" {
		return fmt.Sprintf(`<link rel="stylesheet" href="%s">`, src)
	}
	return fmt.Sprintf(`<script src="%s"></script>`, src)
}

func (st *state) inject(ctx context.Context, step models.Step) error {
	if len(st.files) == 0 {
		return nil
	}

	var files models.VendorFileList
	if st.task.opts.Vendor != nil {
		var err error
		files, err = st.task.opts.Vendor.Resolve(ctx)
		if err != nil {
			return fmt.Errorf("resolving vendor files: %w", err)
		}
	}
	for _, f := range files {
		if ext := path.Ext(f); ext != ".js" && ext != ".css" {
			st.logger.Debug("vendor file is not injectable", "file", f)
		}
	}

	for _, f := range st.files {
		if ext := strings.ToLower(path.Ext(f.Path)); ext != ".html" && ext != ".htm" {
			continue
		}
		res := Inject(f.Contents, step.Anchor, step.Prefix, files)
		if res.Anchors == 0 {
			st.logger.Warn("no injection anchors found", "path", f.Path, "name", step.Anchor)
			continue
		}
		st.logger.Debug("injected vendor tags", "path", f.Path, "tags", res.Tags)
		f.Contents = res.Doc
	}
	return nil
}
