package scene

import (
	"io"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/pvsbake/bake"
	"github.com/aukilabs/pvsbake/models"
	"github.com/segmentio/encoding/json"
)

// Report is the outcome of a bake, as written by WriteReport.
type Report struct {
	Bake      bake.Result      `json:"bake"`
	Occluders []OccluderReport `json:"occluders"`
}

type OccluderReport struct {
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	ID       int             `json:"id"`
	UniqueID int             `json:"unique_id"`
	Octants  []models.Octant `json:"octants"`
}

func NewReport(result bake.Result, instances []*Instance) Report {
	r := Report{
		Bake:      result,
		Occluders: make([]OccluderReport, 0, len(instances)),
	}

	for _, i := range instances {
		octants := i.Octants()
		if octants == nil {
			octants = []models.Octant{}
		}

		r.Occluders = append(r.Occluders, OccluderReport{
			Name:     i.Name,
			Type:     i.OcclusionType().String(),
			ID:       i.OcclusionID(),
			UniqueID: models.UniqueID(i),
			Octants:  octants,
		})
	}
	return r
}

// WriteReport writes the baked octants of the given instances as indented
// JSON.
func WriteReport(w io.Writer, result bake.Result, instances []*Instance) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(NewReport(result, instances)); err != nil {
		return errors.New("writing report failed").Wrap(err)
	}
	return nil
}
