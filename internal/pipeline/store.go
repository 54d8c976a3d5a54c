package pipeline

import (
	"context"
	"time"
)

// Store is the persistence boundary of the pipeline. The implementation owns
// the articles table and its similarity index and is the sole arbiter of
// "already admitted"; in-process checks are pre-filters only.
type Store interface {
	// URLExists reports whether an article with exactly this URL was
	// already admitted.
	URLExists(ctx context.Context, url string) (bool, error)

	// NearestInWindow returns the single nearest admitted article by cosine
	// similarity among rows with inserted_at >= cutoff. found is false when
	// the window holds no rows at all.
	NearestInWindow(ctx context.Context, embedding Vector, cutoff time.Time) (Neighbor, bool, error)

	// Insert durably commits the article with its embedding in one atomic
	// step and returns the store-assigned id. A lost race on the URL unique
	// constraint surfaces as ErrDuplicateURL.
	Insert(ctx context.Context, article AdmittedArticle) (int64, error)
}
