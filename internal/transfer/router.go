package transfer

import (
	"path/filepath"
	"strings"

	"github.com/mohammad-safakhou/dealwatch/internal/helpers"
)

// Router decides where a completed document lands. Product captures go to
// the product directory feeding the ingest loop; everything else goes to the
// general inbox.
type Router struct {
	InboxDir   string
	ProductDir string
}

// DocTypeProduct routes a capture into the product pipeline.
const DocTypeProduct = "product"

// TargetPath builds the destination for one finalized transfer:
// <dir>/<safe(canonical url)>_<id>.html.
func (r Router) TargetPath(url, transferID, docType string) string {
	base := helpers.SafeFileName(helpers.CanonicalURL(url))
	base = strings.TrimSuffix(base, ".html")

	dir := r.InboxDir
	if strings.EqualFold(strings.TrimSpace(docType), DocTypeProduct) {
		dir = r.ProductDir
	}
	return filepath.Join(dir, base+"_"+transferID+".html")
}
