/*
Package reseg re-segments label images and volumes from pairs of seeds using the Image
Foresting Transform (IFT).

Given a label image whose nonzero voxels form the region to split, two seed voxels grow
competing optimum-path forests over an adjacency relation.  Every eligible voxel joins
the seed with the cheapest path, where a path costs the largest arc along it.  Arcs are
uniform or weigh differences of a feature image (grey or CIELab color).

Multiscale stacks hold one segmentation per z slice, coarse to fine.  A walker freezes
the regions under both seeds at every scale and moves each seed to the farthest
adjacent region still unclaimed, so successive scales stay consistent with the split.

Packages

	dheap       priority queue with white/gray/black node states for IFT growth
	adjacency   4/8/6/26 and radius-based neighborhoods, cached by radius
	labels      connected-component relabeling and region-adjacency graphs
	ift         cost functions, growth sessions, reseg and voronoi tessellation
	multiscale  the multiscale walker and select/merge/crop/swap utilities
	imageio     image, folder, seed table and .lbv label volume codecs
	storage     badger-backed store of results
	server      HTTP API over the operations
	cmd/reseg   command-line interface

Commands that run without a server

In the following documentation, the type of brackets designate
<required parameter> and [optional parameter].

	reseg about
	reseg reseg <labels> <seeds file> <output> [img=...] [connectivity=...] [arc=...] [path=...]
	reseg relabel <labels> <output> [connectivity=...] [slices=true]
	reseg graph <labels> [connectivity=...] [background=true]
	reseg multiscale <stack> <seeds file> <output> [steps=...] [relabel=true] [crop=true] [segment=true]
	reseg select <labels> <seeds file> <output>
	reseg merge <labels> <reseg> <output>
	reseg voronoi <output> size=<w>,<h>[,<d>] seeds=<n> [random=<seed>]

Serving

	reseg serve [config.toml]
	reseg token <config.toml> <user>

See the server package for the HTTP API and configuration file format.
*/
package reseg
