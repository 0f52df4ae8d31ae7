package conversation

import (
	"context"

	"github.com/healthbridge/appointment-engine/internal/scheduling"
)

// RepoDirectory adapts the scheduling repository to the DoctorDirectory
// port so recommendations always point at real doctor records.
type RepoDirectory struct {
	repo scheduling.Repository
}

func NewRepoDirectory(repo scheduling.Repository) *RepoDirectory {
	return &RepoDirectory{repo: repo}
}

const maxRecommendations = 5

func (d *RepoDirectory) SearchBySpecialization(ctx context.Context, specialization string) ([]DoctorRef, error) {
	doctors, err := d.repo.ListDoctorsBySpecialization(ctx, specialization)
	if err != nil {
		return nil, err
	}
	if len(doctors) > maxRecommendations {
		doctors = doctors[:maxRecommendations]
	}
	refs := make([]DoctorRef, 0, len(doctors))
	for _, doc := range doctors {
		refs = append(refs, DoctorRef{
			ID:             doc.ID,
			Name:           doc.Name,
			Specialization: doc.Specialization,
			Location:       doc.Location,
			Experience:     doc.Experience,
			Rating:         doc.Rating,
		})
	}
	return refs, nil
}
