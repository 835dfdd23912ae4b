package service

import "github.com/noah-isme/admission-portal-api/internal/models"

// AggregateDocuments rolls active document review states up into the application review status.
// ReviewedBy and ReviewedAt are left for the caller to stamp.
func AggregateDocuments(docs []models.UploadedDocument) models.ReviewStatus {
	var counts models.DocumentCounts
	for _, doc := range docs {
		if !doc.Active() {
			continue
		}
		counts.Total++
		switch doc.Status {
		case models.DocumentStatusApproved:
			counts.Approved++
		case models.DocumentStatusRejected:
			counts.Rejected++
		}
	}
	counts.Pending = counts.Total - counts.Approved - counts.Rejected

	overall := models.ReviewPartiallyApproved
	switch {
	case counts.Total == 0 || counts.Pending == counts.Total:
		overall = models.ReviewNotVerified
	case counts.Approved == counts.Total:
		overall = models.ReviewAllApproved
	case counts.Rejected == counts.Total:
		overall = models.ReviewAllRejected
	}

	return models.ReviewStatus{
		DocumentCounts:              counts,
		OverallDocumentReviewStatus: overall,
		DocumentsVerified:           counts.Total > 0 && counts.Approved == counts.Total,
	}
}
