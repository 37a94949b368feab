// Package population defines the port to the population engine. The
// eligibility service only consumes sub-population resolution; the engine
// itself lives elsewhere.
package population

import (
	"context"

	dErrors "eligibility/pkg/domain-errors"
)

const methodPopulation = "population"

// Resolver answers which sub-population a verified user belongs to and
// which features that sub-population is entitled to.
type Resolver interface {
	GetSubPopulationID(ctx context.Context, userID, organizationID int64) (int64, error)
	GetEligibleFeatures(ctx context.Context, subPopulationID int64, featureType string) ([]string, error)
}

// Unconfigured is the Resolver used when no population engine is wired.
// Every call reports the capability as unimplemented.
type Unconfigured struct{}

func (Unconfigured) GetSubPopulationID(ctx context.Context, userID, organizationID int64) (int64, error) {
	return 0, dErrors.New(dErrors.CodeUnimplemented, "population engine is not configured").WithMethod(methodPopulation)
}

func (Unconfigured) GetEligibleFeatures(ctx context.Context, subPopulationID int64, featureType string) ([]string, error) {
	return nil, dErrors.New(dErrors.CodeUnimplemented, "population engine is not configured").WithMethod(methodPopulation)
}

// Static maps fixed answers; useful in tests and single-tenant deploys.
type Static struct {
	SubPopulations map[[2]int64]int64
	Features       map[int64]map[string][]string
}

func (s *Static) GetSubPopulationID(ctx context.Context, userID, organizationID int64) (int64, error) {
	id, ok := s.SubPopulations[[2]int64{userID, organizationID}]
	if !ok {
		return 0, dErrors.New(dErrors.CodeNotFound, "no sub-population for user").WithMethod(methodPopulation)
	}
	return id, nil
}

func (s *Static) GetEligibleFeatures(ctx context.Context, subPopulationID int64, featureType string) ([]string, error) {
	byType, ok := s.Features[subPopulationID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "unknown sub-population").WithMethod(methodPopulation)
	}
	return byType[featureType], nil
}
