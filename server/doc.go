/*
Package server exposes re-segmentation over HTTP.  Label volumes are uploaded to a
result store and referenced by ID in JSON requests; every operation stores its output
as a new volume.  The server is configured by a TOML file with [server], [logging],
[auth], [store], [cache] and [reseg] sections.

	GET    /api/help
	GET    /api/server/info
	POST   /api/volumes?name=...        upload an .lbv volume or a 2d image
	GET    /api/volumes                 list stored volumes
	GET    /api/volumes/:id             download as .lbv, or ?format=png|tif|pgm for 2d
	GET    /api/volumes/:id/info
	GET    /api/volumes/:id/graph       region-adjacency graph as JSON
	DELETE /api/volumes/:id
	POST   /api/reseg
	POST   /api/relabel
	POST   /api/multiscale
	POST   /api/select
	POST   /api/merge
	POST   /api/voronoi
*/
package server
