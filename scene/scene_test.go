package scene

import (
	"bytes"
	"context"
	"image/color"
	"strconv"
	"strings"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/pvsbake/bake"
	"github.com/aukilabs/pvsbake/featureflag"
	"github.com/aukilabs/pvsbake/models"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

const roomScene = `{
	"settings": {"resolution": 32},
	"occluders": [
		{"name": "crate", "type": "tie", "id": 1, "box": {"center": [12, 12, 12], "size": [2, 2, 2]}},
		{"name": "tower", "type": "moby", "id": 1, "box": {"center": [30, 8, 8], "size": [2, 2, 2]}}
	],
	"static": [
		{"box": {"center": [-0.5, 8, 8], "size": [1, 18, 18]}},
		{"box": {"center": [16.5, 8, 8], "size": [1, 18, 18]}},
		{"box": {"center": [8, -0.5, 8], "size": [18, 1, 18]}},
		{"box": {"center": [8, 16.5, 8], "size": [18, 1, 18]}},
		{"box": {"center": [8, 8, -0.5], "size": [18, 18, 1]}},
		{"box": {"center": [8, 8, 16.5], "size": [18, 18, 1]}}
	],
	"markers": [[[4, 4, 4]]]
}`

func loadScene(t *testing.T, s string) *Scene {
	scene, err := Load(strings.NewReader(s))
	require.NoError(t, err)
	t.Cleanup(scene.Close)
	return scene
}

func TestLoad(t *testing.T) {
	t.Run("missing settings keep their default value", func(t *testing.T) {
		s := loadScene(t, roomScene)

		expected := bake.DefaultSettings()
		expected.Resolution = 32
		require.Equal(t, expected, s.Settings)
	})

	t.Run("occluders are registered", func(t *testing.T) {
		s := loadScene(t, roomScene)
		require.Len(t, s.Instances, 2)
		require.Equal(t, 2, s.Registry.Len())

		tower, err := s.Instance("tower")
		require.NoError(t, err)
		require.Equal(t, models.OccluderTypeMoby, tower.OcclusionType())
		require.Equal(t, 1, tower.OcclusionID())
		require.Equal(t, DefaultColor, tower.Mesh.Color)
	})

	t.Run("static geometry is drawn but not registered", func(t *testing.T) {
		s := loadScene(t, roomScene)
		require.Equal(t, 8, s.Rasterizer.MeshCount())
	})

	t.Run("scene without nodes has no graph", func(t *testing.T) {
		s := loadScene(t, roomScene)
		require.Nil(t, s.Graph)
		require.Nil(t, s.Candidates.Graph)
		require.Nil(t, s.NewBaker(featureflag.New(nil), nil).Graph)
	})

	t.Run("markers are candidates", func(t *testing.T) {
		s := loadScene(t, roomScene)
		require.Equal(t, []models.Octant{{X: 4, Y: 4, Z: 4}}, s.Candidates.Octants())
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		_, err := Load(strings.NewReader(`{"occluders": [], "lights": []}`))
		require.Error(t, err)
		require.Equal(t, ErrTypeSceneDecode, errors.Type(err))
	})

	t.Run("malformed json is rejected", func(t *testing.T) {
		_, err := Load(strings.NewReader(`{"occluders": [`))
		require.Error(t, err)
		require.Equal(t, ErrTypeSceneDecode, errors.Type(err))
	})

	t.Run("missing file is rejected", func(t *testing.T) {
		_, err := LoadFile(t.TempDir() + "/missing.json")
		require.Error(t, err)
		require.Equal(t, ErrTypeSceneDecode, errors.Type(err))
	})
}

func TestNewErrors(t *testing.T) {
	box := Box{Size: mgl32.Vec3{1, 1, 1}}

	tests := []struct {
		name string
		desc Description
	}{
		{
			name: "invalid settings",
			desc: Description{Settings: bake.Settings{Resolution: 100}},
		},
		{
			name: "occluder without name",
			desc: Description{
				Settings:  bake.DefaultSettings(),
				Occluders: []OccluderDesc{{Type: "tie", Box: box}},
			},
		},
		{
			name: "duplicated name",
			desc: Description{
				Settings: bake.DefaultSettings(),
				Occluders: []OccluderDesc{
					{Name: "a", Type: "tie", Box: box},
					{Name: "a", Type: "tfrag", Box: box},
				},
			},
		},
		{
			name: "unknown occluder type",
			desc: Description{
				Settings:  bake.DefaultSettings(),
				Occluders: []OccluderDesc{{Name: "a", Type: "light", Box: box}},
			},
		},
		{
			name: "occlusion id out of range",
			desc: Description{
				Settings:  bake.DefaultSettings(),
				Occluders: []OccluderDesc{{Name: "a", Type: "tie", ID: models.MaxOcclusionID + 1, Box: box}},
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s, err := New(test.desc)
			require.Error(t, err)
			require.Nil(t, s)
			require.Equal(t, ErrTypeSceneInvalid, errors.Type(err))
		})
	}
}

func TestNewVolumes(t *testing.T) {
	s, err := New(Description{
		Settings: bake.DefaultSettings(),
		Volumes: []VolumeDesc{
			{Position: mgl32.Vec3{1, 1, 1}, Scale: mgl32.Vec3{9, 9, 9}, Align: true},
			{Position: mgl32.Vec3{-2, -2, -2}, Scale: mgl32.Vec3{2, 2, 2}, Negate: true},
		},
	})
	require.NoError(t, err)
	defer s.Close()

	require.Len(t, s.Candidates.Volumes, 2)
	require.Equal(t, mgl32.Vec3{0, 0, 0}, s.Candidates.Volumes[0].Position)
	require.Equal(t, mgl32.Vec3{8, 8, 8}, s.Candidates.Volumes[0].Scale)

	octants := s.Candidates.Octants()
	require.Len(t, octants, 7)
	require.NotContains(t, octants, models.Octant{X: -4, Y: -4, Z: -4})
	require.Contains(t, octants, models.Octant{})
}

func TestNewNodes(t *testing.T) {
	s, err := New(Description{
		Settings: bake.DefaultSettings(),
		Static: []StaticDesc{
			{Box: Box{Center: mgl32.Vec3{10, 0, 0}, Size: mgl32.Vec3{1, 40, 40}}, Collidable: true},
		},
		Nodes: []mgl32.Vec3{{0.3, 1.1, 0.2}},
	})
	require.NoError(t, err)
	defer s.Close()

	require.NotNil(t, s.Graph)
	require.Equal(t, 1, s.Graph.Len())
	require.Equal(t, 12, s.Grid.GetDebugInfo().TriangleCount)

	require.True(t, s.Graph.CanSeeAnyNode(mgl32.Vec3{4.1, 2.3, 1.2}))
	require.False(t, s.Graph.CanSeeAnyNode(mgl32.Vec3{20.1, 2.3, 1.2}))
	require.NotNil(t, s.NewBaker(featureflag.New(nil), nil).Graph)
}

func TestSelect(t *testing.T) {
	s := loadScene(t, roomScene)

	t.Run("no name selects every occluder", func(t *testing.T) {
		occluders, err := s.Select()
		require.NoError(t, err)
		require.Len(t, occluders, 2)
	})

	t.Run("occluders are selected by name", func(t *testing.T) {
		occluders, err := s.Select("tower")
		require.NoError(t, err)
		require.Len(t, occluders, 1)
		require.Equal(t, models.OccluderTypeMoby, occluders[0].OcclusionType())
	})

	t.Run("unknown name is rejected", func(t *testing.T) {
		_, err := s.Select("tower", "bridge")
		require.Error(t, err)
		require.Equal(t, ErrTypeUnknownOccluder, errors.Type(err))
	})
}

func TestAddOccluder(t *testing.T) {
	s := loadScene(t, roomScene)

	t.Run("duplicated id is repaired", func(t *testing.T) {
		i, err := s.AddOccluder(OccluderDesc{
			Name:       "barrel",
			Type:       "tie",
			ID:         1,
			Box:        Box{Center: mgl32.Vec3{40, 0, 0}, Size: mgl32.Vec3{1, 1, 1}},
			Collidable: true,
		})
		require.NoError(t, err)
		require.Equal(t, 2, i.OcclusionID())
		require.Equal(t, 3, s.Registry.Len())
		require.Len(t, s.Instances, 3)
		require.Equal(t, 12, s.Grid.GetDebugInfo().TriangleCount)

		crate, err := s.Instance("crate")
		require.NoError(t, err)
		require.Equal(t, 1, crate.OcclusionID())
	})

	t.Run("used name is rejected", func(t *testing.T) {
		_, err := s.AddOccluder(OccluderDesc{Name: "crate", Type: "tie"})
		require.Error(t, err)
		require.Equal(t, ErrTypeSceneInvalid, errors.Type(err))
	})

	t.Run("empty name is rejected", func(t *testing.T) {
		_, err := s.AddOccluder(OccluderDesc{Type: "tie"})
		require.Error(t, err)
		require.Equal(t, ErrTypeSceneInvalid, errors.Type(err))
	})

	t.Run("invalid occluder is not added", func(t *testing.T) {
		_, err := s.AddOccluder(OccluderDesc{Name: "lamp", Type: "light"})
		require.Error(t, err)
		require.Equal(t, 3, s.Registry.Len())
		require.Len(t, s.Instances, 3)
	})
}

func TestInstanceBakeMode(t *testing.T) {
	s := loadScene(t, roomScene)
	crate, err := s.Instance("crate")
	require.NoError(t, err)

	idColor := models.EncodeIDColor(crate.OcclusionID(), crate.OcclusionType())

	crate.EnterBakeMode(idColor)
	require.Equal(t, idColor, crate.Mesh.Color)

	crate.EnterBakeMode(color.RGBA{R: 7, A: 255})
	crate.LeaveBakeMode()
	require.Equal(t, DefaultColor, crate.Mesh.Color)

	crate.LeaveBakeMode()
	require.Equal(t, DefaultColor, crate.Mesh.Color)
}

func TestBakeScene(t *testing.T) {
	s := loadScene(t, roomScene)

	var progress []bake.Progress
	baker := s.NewBaker(featureflag.New(nil), func(p bake.Progress) {
		progress = append(progress, p)
	})

	occluders, err := s.Select()
	require.NoError(t, err)

	result, err := baker.Bake(context.Background(), occluders, s.Candidates.Octants())
	require.NoError(t, err)
	require.Equal(t, 1, result.Processed)
	require.False(t, result.Cancelled)
	require.NotEmpty(t, progress)
	require.True(t, progress[len(progress)-1].Done)

	crate, _ := s.Instance("crate")
	tower, _ := s.Instance("tower")
	require.Equal(t, []models.Octant{{X: 4, Y: 4, Z: 4}}, crate.Octants())
	require.Empty(t, tower.Octants())
	require.Equal(t, DefaultColor, crate.Mesh.Color)
	require.Equal(t, DefaultColor, tower.Mesh.Color)

	t.Run("report lists the baked octants", func(t *testing.T) {
		var buf bytes.Buffer
		err := WriteReport(&buf, result, s.Instances)
		require.NoError(t, err)

		var report struct {
			Bake struct {
				BakeID    string `json:"bake_id"`
				Processed int    `json:"processed"`
			} `json:"bake"`
			Occluders []struct {
				Name     string   `json:"name"`
				Type     string   `json:"type"`
				ID       int      `json:"id"`
				UniqueID int      `json:"unique_id"`
				Octants  [][3]int `json:"octants"`
			} `json:"occluders"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &report))

		require.Equal(t, result.BakeID, report.Bake.BakeID)
		require.Equal(t, 1, report.Bake.Processed)
		require.Len(t, report.Occluders, 2)

		require.Equal(t, "crate", report.Occluders[0].Name)
		require.Equal(t, "tie", report.Occluders[0].Type)
		require.Equal(t, 2, report.Occluders[0].UniqueID)
		require.Equal(t, [][3]int{{4, 4, 4}}, report.Occluders[0].Octants)

		require.Equal(t, "tower", report.Occluders[1].Name)
		require.Equal(t, "moby", report.Occluders[1].Type)
		require.Empty(t, report.Occluders[1].Octants)
		require.NotNil(t, report.Occluders[1].Octants)
	})
}

func sealedRoomScene(node string) string {
	return `{
	"settings": {"resolution": 32},
	"occluders": [
		{"name": "crate", "type": "tie", "id": 1, "box": {"center": [12, 12, 12], "size": [2, 2, 2]}}
	],
	"static": [
		{"box": {"center": [-0.5, 8, 8], "size": [1, 18, 18]}, "collidable": true},
		{"box": {"center": [16.5, 8, 8], "size": [1, 18, 18]}, "collidable": true},
		{"box": {"center": [8, -0.5, 8], "size": [18, 1, 18]}, "collidable": true},
		{"box": {"center": [8, 16.5, 8], "size": [18, 1, 18]}, "collidable": true},
		{"box": {"center": [8, 8, -0.5], "size": [18, 18, 1]}, "collidable": true},
		{"box": {"center": [8, 8, 16.5], "size": [18, 18, 1]}, "collidable": true}
	],
	"markers": [[[4, 4, 4]]],
	"nodes": [` + node + `]
}`
}

func TestBakeSealedRoom(t *testing.T) {
	t.Run("occluder is not baked when no node is inside the room", func(t *testing.T) {
		s := loadScene(t, sealedRoomScene("[24.3, 8.1, 8.2]"))
		occluders, err := s.Select()
		require.NoError(t, err)

		result, err := s.NewBaker(featureflag.New(nil), nil).
			Bake(context.Background(), occluders, s.Candidates.Octants())
		require.NoError(t, err)
		require.Equal(t, 1, result.Processed)
		require.Equal(t, 8, result.PrunedCorners)
		require.Zero(t, result.SampledCorners)

		crate, err := s.Instance("crate")
		require.NoError(t, err)
		require.Empty(t, crate.Octants())
		require.NotNil(t, crate.Octants())
	})

	t.Run("occluder is baked when a node is inside the room", func(t *testing.T) {
		s := loadScene(t, sealedRoomScene("[8.3, 8.1, 7.9]"))
		occluders, err := s.Select()
		require.NoError(t, err)

		result, err := s.NewBaker(featureflag.New(nil), nil).
			Bake(context.Background(), occluders, s.Candidates.Octants())
		require.NoError(t, err)
		require.Zero(t, result.PrunedCorners)
		require.Equal(t, 8, result.SampledCorners)

		crate, err := s.Instance("crate")
		require.NoError(t, err)
		require.Equal(t, []models.Octant{{X: 4, Y: 4, Z: 4}}, crate.Octants())
	})

	t.Run("sample pruning can be disabled", func(t *testing.T) {
		s := loadScene(t, sealedRoomScene("[24.3, 8.1, 8.2]"))
		occluders, err := s.Select()
		require.NoError(t, err)

		flags := featureflag.New([]string{string(featureflag.FlagDisableSamplePruning)})
		result, err := s.NewBaker(flags, nil).
			Bake(context.Background(), occluders, s.Candidates.Octants())
		require.NoError(t, err)
		require.Zero(t, result.PrunedCorners)

		crate, err := s.Instance("crate")
		require.NoError(t, err)
		require.Equal(t, []models.Octant{{X: 4, Y: 4, Z: 4}}, crate.Octants())
	})
}

// The wall covers x >= 2 between the octant row and the sign, so only the
// octants with a corner at x <= 0 see the sign.
func partialWallScene(featherRadius int) string {
	return `{
	"settings": {"resolution": 64, "feather_radius": ` + strconv.Itoa(featherRadius) + `},
	"occluders": [
		{"name": "sign", "type": "moby", "id": 4, "box": {"center": [0, 2, 40], "size": [10, 10, 2]}}
	],
	"static": [
		{"box": {"center": [51, 0, 6.5], "size": [98, 200, 1]}, "collidable": true}
	],
	"markers": [[
		[-16, 0, 0], [-12, 0, 0], [-8, 0, 0], [-4, 0, 0],
		[0, 0, 0], [4, 0, 0], [8, 0, 0], [12, 0, 0]
	]],
	"nodes": [[-0.3, 2.1, -6.2]]
}`
}

func TestBakePartialWall(t *testing.T) {
	bakeSign := func(t *testing.T, featherRadius int) (bake.Result, []models.Octant) {
		s := loadScene(t, partialWallScene(featherRadius))
		occluders, err := s.Select()
		require.NoError(t, err)

		result, err := s.NewBaker(featureflag.New(nil), nil).
			Bake(context.Background(), occluders, s.Candidates.Octants())
		require.NoError(t, err)

		sign, err := s.Instance("sign")
		require.NoError(t, err)
		return result, sign.Octants()
	}

	visible := []models.Octant{
		{X: -16}, {X: -12}, {X: -8}, {X: -4}, {X: 0},
	}

	t.Run("wall hides the sign from part of the row", func(t *testing.T) {
		result, octants := bakeSign(t, 0)
		require.Equal(t, 8, result.Processed)
		require.Zero(t, result.PrunedCorners)
		require.Equal(t, visible, octants)
	})

	t.Run("feathering adds the candidate neighbors", func(t *testing.T) {
		_, octants := bakeSign(t, 1)
		require.Equal(t, append(visible, models.Octant{X: 4}), octants)
	})
}
