package ift

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/janelia-flyem/reseg/adjacency"
	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/volume"
)

// Voronoi returns a label image of the given size partitioned into numSeeds regions
// grown from distinct random voxels, each voxel taking the label of the seed nearest
// along 4- or 6-connected paths.  Labels run from 1 to numSeeds in order of sampling.
func Voronoi(ctx context.Context, gridSize dvid.Point3d, numSeeds int, rng *rand.Rand) (*volume.Volume, error) {
	if err := volume.CheckSize(gridSize); err != nil {
		return nil, err
	}
	n := int(gridSize.Prod())
	if numSeeds < 1 || numSeeds > n {
		return nil, fmt.Errorf("cannot place %d seeds in %d voxels: %w", numSeeds, n, dvid.ErrInvalidArgument)
	}
	var adj *adjacency.Relation
	var err error
	if gridSize[2] > 1 {
		adj, err = adjacency.Spheric(1)
	} else {
		adj, err = adjacency.Circular(1)
	}
	if err != nil {
		return nil, err
	}
	s, err := NewSession(gridSize, Options{Adjacency: adj, Arc: Geometric{Size: gridSize}, Path: Additive})
	if err != nil {
		return nil, err
	}

	used := make(map[int]struct{}, numSeeds)
	seeds := make([][]int, 0, numSeeds)
	for len(seeds) < numSeeds {
		i := rng.Intn(n)
		if _, found := used[i]; found {
			continue
		}
		used[i] = struct{}{}
		seeds = append(seeds, []int{i})
	}
	return s.GrowFrom(ctx, nil, seeds)
}
