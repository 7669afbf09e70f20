package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zenazn/goji/web"
	"github.com/zenazn/goji/web/middleware"

	"github.com/janelia-flyem/reseg/adjacency"
	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/ift"
	"github.com/janelia-flyem/reseg/imageio"
	"github.com/janelia-flyem/reseg/labels"
	"github.com/janelia-flyem/reseg/multiscale"
	"github.com/janelia-flyem/reseg/storage"
	"github.com/janelia-flyem/reseg/volume"
)

const WebHelp = `
API for reseg server (%s)
==========================

All volumes are referenced by the ID returned when they are uploaded or created.

GET  /api/help
	Returns this help.

GET  /api/server/info
	Returns JSON with the server version, store and cache statistics.

POST /api/volumes?name=<name>
	Stores the request body: an .lbv label volume, or a png, tiff, pgm, ppm, bmp, gif
	or jpeg image if the Content-Type is image/*.  Returns the stored volume's metadata.

GET  /api/volumes
	Returns the metadata of all stored volumes.

GET  /api/volumes/<id>?format=<lbv|png|tif|pgm>
	Returns a stored volume, by default as an .lbv label volume.  Image formats need a
	2d volume with labels in [0, 65535].

GET  /api/volumes/<id>/info
	Returns the metadata of a stored volume.

GET  /api/volumes/<id>/graph?connectivity=<n>&background=<bool>
	Returns the region-adjacency graph of a stored volume:
	{"max_label": 3, "edges": [[1, 2], [2, 3]]}

DELETE /api/volumes/<id>

POST /api/reseg
	{"labels": id, "seeds": [[x,y(,z)], [x,y(,z)]], "features": id, "connectivity": "8",
	 "arc": "uniform|feature|root", "path": "max|sum|power:<p>", "workers": n, "name": s}
	Splits the nonzero voxels of "labels" into regions 1 and 2 grown from the seeds.

POST /api/relabel
	{"labels": id, "connectivity": "4", "slices": bool, "name": s}
	Gives every connected component a distinct label, per z slice if "slices" is set.

POST /api/multiscale
	{"stack": id, "anchors": [[x,y], [x,y]], "connectivity": "4|8", "relabel": bool,
	 "crop": bool, "steps": n, "segment": bool, "path": s, "name": s}
	Walks the anchors across the scales (z slices) of a stack.  Returns the two frozen
	sides per scale, or with "segment" the finest scale grown from them.

POST /api/select
	{"labels": id, "point": [x,y(,z)], "name": s}
	Returns a mask of the region under the point.

POST /api/merge
	{"labels": id, "reseg": id, "name": s}
	Writes the two regions of a re-segmentation back into a label volume.

POST /api/voronoi
	{"size": [w,h(,d)], "seeds": n, "random_seed": n, "name": s}
	Returns a random Voronoi label volume.

Operation responses are JSON: {"result": <metadata of stored output>, ...}
`

// opResponse is returned by every operation.
type opResponse struct {
	Result     storage.Result `json:"result"`
	Sizes      []int          `json:"sizes,omitempty"`
	Components []int32        `json:"components,omitempty"`
	Steps      *int           `json:"steps,omitempty"`
}

// graphResponse lists each unordered edge once as (smaller, larger) label.
type graphResponse struct {
	MaxLabel int32      `json:"max_label"`
	Edges    [][2]int32 `json:"edges"`
}

func (s *Server) routes() http.Handler {
	mainMux := web.New()
	mainMux.Use(middleware.RequestID)
	mainMux.Use(middleware.EnvInit)
	mainMux.Use(logRequests)
	mainMux.Use(middleware.Recoverer)
	mainMux.Use(requestsOK)
	mainMux.Use(s.limitBody)

	mainMux.Get("/api/help", s.helpHandler)
	mainMux.Get("/api/server/info", s.serverInfoHandler)

	apiMux := web.New()
	if s.config.Auth.Enabled() {
		apiMux.Use(s.isAuthorized)
	}
	apiMux.Post("/api/volumes", s.uploadHandler)
	apiMux.Get("/api/volumes", s.listHandler)
	apiMux.Get("/api/volumes/:id/info", s.infoHandler)
	apiMux.Get("/api/volumes/:id/graph", s.graphHandler)
	apiMux.Get("/api/volumes/:id", s.downloadHandler)
	apiMux.Delete("/api/volumes/:id", s.deleteHandler)
	apiMux.Post("/api/reseg", s.resegHandler)
	apiMux.Post("/api/relabel", s.relabelHandler)
	apiMux.Post("/api/multiscale", s.multiscaleHandler)
	apiMux.Post("/api/select", s.selectHandler)
	apiMux.Post("/api/merge", s.mergeHandler)
	apiMux.Post("/api/voronoi", s.voronoiHandler)
	apiMux.NotFound(notFound)

	mainMux.Handle("/api/*", apiMux)
	mainMux.NotFound(notFound)
	return mainMux
}

// logRequests logs each request with its elapsed time at debug level.
func logRequests(c *web.C, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		timedLog := dvid.NewTimeLog()
		h.ServeHTTP(w, r)
		timedLog.Debugf("HTTP %s %s [%s]", r.Method, r.URL, middleware.GetReqID(*c))
	}
	return http.HandlerFunc(fn)
}

// requestsOK rejects requests while the server is shutting down.
func requestsOK(h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		if !dvid.RequestsOK() {
			writeError(w, r, http.StatusServiceUnavailable, "server is not accepting requests")
			return
		}
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

func (s *Server) limitBody(h http.Handler) http.Handler {
	limit := int64(s.config.Server.MaxUpload) * dvid.Mega
	fn := func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		dvid.Errorf("Unable to write JSON response: %v\n", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	errorMsg := fmt.Sprintf("%s (%s)", message, r.URL.Path)
	if status >= http.StatusInternalServerError {
		dvid.Errorf("%s\n", errorMsg)
	} else {
		dvid.Warningf("%s\n", errorMsg)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": errorMsg})
}

// BadRequest writes an error message as JSON with status 400 and logs it.
func BadRequest(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	writeError(w, r, http.StatusBadRequest, fmt.Sprintf(format, args...))
}

func unauthorized(w http.ResponseWriter, r *http.Request, format string, args ...interface{}) {
	writeError(w, r, http.StatusUnauthorized, fmt.Sprintf(format, args...))
}

func notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "no such endpoint")
}

// fail writes err with a status matching its kind.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, dvid.ErrInvalidArgument), errors.Is(err, dvid.ErrUnsupportedFormat):
		BadRequest(w, r, "%v", err)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.As(err, &maxErr):
		writeError(w, r, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, context.Canceled):
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) helpHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	fmt.Fprintf(w, WebHelp, dvid.Version)
}

func (s *Server) serverInfoHandler(w http.ResponseWriter, r *http.Request) {
	info := map[string]interface{}{
		"version": dvid.Version.String(),
		"host":    s.config.Host(),
		"note":    s.config.Server.Note,
		"store":   fmt.Sprintf("%v", s.store),
		"cache":   s.cache.stats(),
		"auth":    s.config.Auth.Enabled(),
	}
	writeJSON(w, info)
}

// loadVolume returns a fresh copy of a stored volume, from the cache if possible.
func (s *Server) loadVolume(id string) (*volume.Volume, error) {
	if vol := s.cache.getVolume(id); vol != nil {
		return vol, nil
	}
	_, vol, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	s.cache.setVolume(id, vol)
	return vol, nil
}

func (s *Server) storeVolume(op, name string, vol *volume.Volume) (storage.Result, error) {
	info, err := s.store.Put(storage.Result{Name: name, Operation: op}, vol)
	if err != nil {
		return info, err
	}
	s.cache.setVolume(info.ID, vol)
	dvid.Infof("Stored %s output of size %s as %s\n", op, vol.Size, info.ID)
	return info, nil
}

func (s *Server) uploadHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		fail(w, r, err)
		return
	}
	var vol *volume.Volume
	if strings.HasPrefix(r.Header.Get("Content-Type"), "image/") {
		vol, err = imageio.ReadImageLimit(bytes.NewReader(data), s.config.Server.MaxVoxels)
	} else {
		vol, err = imageio.DecodeLabelVolumeLimit(data, s.config.Server.MaxVoxels)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	info, err := s.storeVolume("upload", r.URL.Query().Get("name"), vol)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, info)
}

func (s *Server) listHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	results, err := s.store.List()
	if err != nil {
		fail(w, r, err)
		return
	}
	if results == nil {
		results = []storage.Result{}
	}
	writeJSON(w, results)
}

func (s *Server) infoHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	info, err := s.store.Info(c.URLParams["id"])
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, info)
}

var imageContentTypes = map[string]string{
	"png":  "image/png",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"pgm":  "image/x-portable-graymap",
}

func (s *Server) downloadHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	vol, err := s.loadVolume(c.URLParams["id"])
	if err != nil {
		fail(w, r, err)
		return
	}
	format := strings.ToLower(r.URL.Query().Get("format"))
	var buf bytes.Buffer
	contentType := "application/octet-stream"
	switch format {
	case "", "lbv":
		var data []byte
		if data, err = imageio.EncodeLabelVolume(vol, dvid.Zstd); err == nil {
			buf.Write(data)
		}
	default:
		var found bool
		if contentType, found = imageContentTypes[format]; !found {
			BadRequest(w, r, "unknown format %q", format)
			return
		}
		err = imageio.EncodeImage(&buf, vol, format)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	if _, err := buf.WriteTo(w); err != nil {
		dvid.Errorf("Unable to write volume %s: %v\n", c.URLParams["id"], err)
	}
}

func (s *Server) deleteHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	id := c.URLParams["id"]
	if err := s.store.Delete(id); err != nil {
		fail(w, r, err)
		return
	}
	s.cache.remove(id)
	w.WriteHeader(http.StatusNoContent)
}

var graphConnectivities = []string{"4", "8", "6", "18", "26"}

func graphKey(id, conn string, background bool) string {
	return fmt.Sprintf("graph/%s/%s/%t", id, conn, background)
}

func graphKeys(id string) []string {
	var keys []string
	for _, conn := range graphConnectivities {
		keys = append(keys, graphKey(id, conn, false), graphKey(id, conn, true))
	}
	return keys
}

func (s *Server) graphHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	id := c.URLParams["id"]
	query := r.URL.Query()
	var background bool
	if str := query.Get("background"); str != "" {
		var err error
		if background, err = strconv.ParseBool(str); err != nil {
			BadRequest(w, r, "bad background setting %q", str)
			return
		}
	}
	vol, err := s.loadVolume(id)
	if err != nil {
		fail(w, r, err)
		return
	}
	conn := adjacency.Default(vol.Is3D())
	if str := query.Get("connectivity"); str != "" {
		if conn, err = adjacency.ParseConnectivity(str); err != nil {
			fail(w, r, err)
			return
		}
	}
	key := graphKey(id, strconv.Itoa(int(conn)), background)
	if data, found := s.cache.getBytes(key); found {
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
		return
	}
	adj, err := adjacency.ForConnectivity(conn)
	if err != nil {
		fail(w, r, err)
		return
	}
	g := labels.BuildGraph(vol, adj, labels.GraphOptions{IncludeBackground: background})
	resp := graphResponse{MaxLabel: g.MaxLabel, Edges: [][2]int32{}}
	for _, pair := range g.Pairs() {
		if pair[0] < pair[1] {
			resp.Edges = append(resp.Edges, pair)
		}
	}
	data, err := json.Marshal(resp)
	if err != nil {
		fail(w, r, err)
		return
	}
	s.cache.setBytes(key, data)
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// countLabels returns the number of voxels of each label 1..n.
func countLabels(vol *volume.Volume, n int) []int {
	sizes := make([]int, n)
	for _, label := range vol.Data {
		if label >= 1 && int(label) <= n {
			sizes[label-1]++
		}
	}
	return sizes
}

type resegRequest struct {
	Labels       string    `json:"labels"`
	Features     string    `json:"features"`
	Seeds        [][]int32 `json:"seeds"`
	Connectivity string    `json:"connectivity"`
	Arc          string    `json:"arc"`
	Path         string    `json:"path"`
	Workers      int       `json:"workers"`
	Name         string    `json:"name"`
}

func (s *Server) resegHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	var req resegRequest
	if err := s.decodeRequest(r, "reseg", &req); err != nil {
		fail(w, r, err)
		return
	}
	mask, err := s.loadVolume(req.Labels)
	if err != nil {
		fail(w, r, err)
		return
	}
	var features *volume.Features
	if req.Features != "" {
		fvol, err := s.loadVolume(req.Features)
		if err != nil {
			fail(w, r, err)
			return
		}
		features = volume.FeaturesFromVolume(fvol)
	}
	arc, path, workers := req.Arc, req.Path, req.Workers
	if arc == "" && features != nil {
		arc = s.config.Reseg.Arc
	}
	if path == "" {
		path = s.config.Reseg.Path
	}
	if workers == 0 {
		workers = s.config.Reseg.Workers
	}
	conn := req.Connectivity
	if conn == "" {
		conn = s.config.Reseg.Connectivity
	}
	opts, err := ift.ParseOptions(conn, arc, path, workers, features, mask.Size)
	if err != nil {
		fail(w, r, err)
		return
	}
	seeds := [2]dvid.Point3d{point(req.Seeds[0]), point(req.Seeds[1])}
	out, err := ift.Reseg(r.Context(), mask, seeds, opts)
	if err != nil {
		fail(w, r, err)
		return
	}
	info, err := s.storeVolume("reseg", req.Name, out)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, opResponse{Result: info, Sizes: countLabels(out, 2)})
}

type relabelRequest struct {
	Labels       string `json:"labels"`
	Connectivity string `json:"connectivity"`
	Slices       bool   `json:"slices"`
	Name         string `json:"name"`
}

func (s *Server) relabelHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	var req relabelRequest
	if err := s.decodeRequest(r, "relabel", &req); err != nil {
		fail(w, r, err)
		return
	}
	vol, err := s.loadVolume(req.Labels)
	if err != nil {
		fail(w, r, err)
		return
	}
	conn := adjacency.Default(vol.Is3D() && !req.Slices)
	if req.Connectivity != "" {
		if conn, err = adjacency.ParseConnectivity(req.Connectivity); err != nil {
			fail(w, r, err)
			return
		}
	}
	adj, err := adjacency.ForConnectivity(conn)
	if err != nil {
		fail(w, r, err)
		return
	}
	var out *volume.Volume
	var components []int32
	if req.Slices {
		if out, components, err = labels.RelabelSlices(vol, adj); err != nil {
			fail(w, r, err)
			return
		}
	} else {
		var n int32
		out, n = labels.Relabel(vol, adj)
		components = []int32{n}
	}
	info, err := s.storeVolume("relabel", req.Name, out)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, opResponse{Result: info, Components: components})
}

type multiscaleRequest struct {
	Stack        string    `json:"stack"`
	Anchors      [][]int32 `json:"anchors"`
	Connectivity string    `json:"connectivity"`
	Relabel      bool      `json:"relabel"`
	Crop         bool      `json:"crop"`
	Steps        int       `json:"steps"`
	Segment      bool      `json:"segment"`
	Path         string    `json:"path"`
	Name         string    `json:"name"`
}

func (s *Server) multiscaleHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	var req multiscaleRequest
	if err := s.decodeRequest(r, "multiscale", &req); err != nil {
		fail(w, r, err)
		return
	}
	stack, err := s.loadVolume(req.Stack)
	if err != nil {
		fail(w, r, err)
		return
	}
	opts := multiscale.WalkerOptions{Relabel: req.Relabel, Crop: req.Crop}
	if req.Connectivity != "" {
		if opts.Connectivity, err = adjacency.ParseConnectivity(req.Connectivity); err != nil {
			fail(w, r, err)
			return
		}
	}
	walker, err := multiscale.NewWalker(stack, [2]dvid.Point3d{point(req.Anchors[0]), point(req.Anchors[1])}, opts)
	if err != nil {
		fail(w, r, err)
		return
	}
	if err := walker.Run(r.Context(), req.Steps); err != nil {
		fail(w, r, err)
		return
	}
	out := walker.Result()
	op := "multiscale"
	if req.Segment {
		path := req.Path
		if path == "" {
			path = s.config.Reseg.Path
		}
		pathCost, err := ift.ParsePathCost(path)
		if err != nil {
			fail(w, r, err)
			return
		}
		if out, err = walker.Segment(r.Context(), ift.Options{Path: pathCost, Workers: s.config.Reseg.Workers}); err != nil {
			fail(w, r, err)
			return
		}
		op = "multiscale-segment"
	}
	info, err := s.storeVolume(op, req.Name, out)
	if err != nil {
		fail(w, r, err)
		return
	}
	steps := walker.Steps()
	writeJSON(w, opResponse{Result: info, Sizes: countLabels(out, 2), Steps: &steps})
}

type selectRequest struct {
	Labels string  `json:"labels"`
	Point  []int32 `json:"point"`
	Name   string  `json:"name"`
}

func (s *Server) selectHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := s.decodeRequest(r, "select", &req); err != nil {
		fail(w, r, err)
		return
	}
	vol, err := s.loadVolume(req.Labels)
	if err != nil {
		fail(w, r, err)
		return
	}
	out, err := multiscale.SelectSuperpixel(vol, point(req.Point))
	if err != nil {
		fail(w, r, err)
		return
	}
	info, err := s.storeVolume("select", req.Name, out)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, opResponse{Result: info, Sizes: countLabels(out, 1)})
}

type mergeRequest struct {
	Labels string `json:"labels"`
	Reseg  string `json:"reseg"`
	Name   string `json:"name"`
}

func (s *Server) mergeHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	var req mergeRequest
	if err := s.decodeRequest(r, "merge", &req); err != nil {
		fail(w, r, err)
		return
	}
	vol, err := s.loadVolume(req.Labels)
	if err != nil {
		fail(w, r, err)
		return
	}
	reseg, err := s.loadVolume(req.Reseg)
	if err != nil {
		fail(w, r, err)
		return
	}
	out, err := multiscale.Merge(vol, reseg)
	if err != nil {
		fail(w, r, err)
		return
	}
	info, err := s.storeVolume("merge", req.Name, out)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, opResponse{Result: info})
}

type voronoiRequest struct {
	Size       []int32 `json:"size"`
	Seeds      int     `json:"seeds"`
	RandomSeed *int64  `json:"random_seed"`
	Name       string  `json:"name"`
}

func (s *Server) voronoiHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	var req voronoiRequest
	if err := s.decodeRequest(r, "voronoi", &req); err != nil {
		fail(w, r, err)
		return
	}
	size := dvid.Point3d{1, 1, 1}
	copy(size[:], req.Size)
	if err := volume.CheckVoxels(size, s.config.Server.MaxVoxels); err != nil {
		fail(w, r, err)
		return
	}
	seed := time.Now().UnixNano()
	if req.RandomSeed != nil {
		seed = *req.RandomSeed
	}
	out, err := ift.Voronoi(r.Context(), size, req.Seeds, rand.New(rand.NewSource(seed)))
	if err != nil {
		fail(w, r, err)
		return
	}
	info, err := s.storeVolume("voronoi", req.Name, out)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, opResponse{Result: info, Sizes: countLabels(out, req.Seeds)})
}
