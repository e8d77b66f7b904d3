package result

import (
	"encoding/json"
	"time"

	"github.com/cuongbtq/analysis-delivery/internal/domain"
)

// ownerOnlyKeys never appear in a public payload
var ownerOnlyKeys = []string{"owner_id", "user_id", "share_token"}

// Merge combines engine content with durable metadata. Engine fields win for
// analytical content; the store wins for lifecycle metadata.
func Merge(fields map[string]any, job *domain.Job, scope Scope, engineError string) ([]byte, error) {
	out := make(map[string]any, len(fields)+10)
	for k, v := range fields {
		out[k] = v
	}

	out["id"] = job.ID
	out["analysis_id"] = job.ID
	out["title"] = job.Title
	out["status"] = job.Status.String()
	out["visibility"] = job.Visibility.String()
	out["created_at"] = job.CreatedAt.UTC().Format(time.RFC3339)
	out["updated_at"] = job.UpdatedAt.UTC().Format(time.RFC3339)
	if job.SharedAt != nil {
		out["shared_at"] = job.SharedAt.UTC().Format(time.RFC3339)
	} else {
		out["shared_at"] = nil
	}

	switch {
	case job.ErrorMessage != "":
		out["error_message"] = job.ErrorMessage
	case engineError != "":
		out["error_message"] = engineError
	}

	if scope.IsPublic() {
		for _, k := range ownerOnlyKeys {
			delete(out, k)
		}
	} else {
		out["owner_id"] = job.OwnerID
		if job.ShareToken != "" {
			out["share_token"] = job.ShareToken
		} else {
			out["share_token"] = nil
		}
	}

	return json.Marshal(out)
}
