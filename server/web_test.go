package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/imageio"
	"github.com/janelia-flyem/reseg/storage"
	"github.com/janelia-flyem/reseg/volume"
)

func newTestServer(t *testing.T, config *Config) *Server {
	t.Helper()
	store, _, err := storage.Open(storage.Config{InMemory: true})
	if err != nil {
		t.Fatalf("can't open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	s, err := New(config, store)
	if err != nil {
		t.Fatalf("can't create server: %v", err)
	}
	return s
}

func request(t *testing.T, s *Server, method, url string, body io.Reader, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, url, body)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func postJSON(t *testing.T, s *Server, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	return request(t, s, "POST", url, strings.NewReader(body), "Content-Type", "application/json")
}

func checkStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}
}

func makeVolume(size dvid.Point3d, data []int32) *volume.Volume {
	vol := volume.New(size)
	copy(vol.Data, data)
	return vol
}

func upload(t *testing.T, s *Server, vol *volume.Volume) string {
	t.Helper()
	data, err := imageio.EncodeLabelVolume(vol, dvid.Snappy)
	if err != nil {
		t.Fatal(err)
	}
	w := request(t, s, "POST", "/api/volumes?name=test", bytes.NewReader(data))
	checkStatus(t, w, http.StatusOK)
	var info storage.Result
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("bad upload response %s: %v", w.Body.String(), err)
	}
	if info.Size != vol.Size || info.Name != "test" || info.Operation != "upload" {
		t.Fatalf("bad upload metadata %+v", info)
	}
	return info.ID
}

func download(t *testing.T, s *Server, id string) *volume.Volume {
	t.Helper()
	w := request(t, s, "GET", "/api/volumes/"+id, nil)
	checkStatus(t, w, http.StatusOK)
	vol, err := imageio.DecodeLabelVolume(w.Body.Bytes())
	if err != nil {
		t.Fatalf("bad downloaded volume: %v", err)
	}
	return vol
}

func checkData(t *testing.T, name string, got, expected []int32) {
	t.Helper()
	if len(got) != len(expected) {
		t.Fatalf("%s: expected %d voxels, got %d", name, len(expected), len(got))
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("%s: expected %v, got %v", name, expected, got)
		}
	}
}

type testResponse struct {
	Result     storage.Result `json:"result"`
	Sizes      []int          `json:"sizes"`
	Components []int32        `json:"components"`
	Steps      *int           `json:"steps"`
}

func decodeOp(t *testing.T, w *httptest.ResponseRecorder) testResponse {
	t.Helper()
	checkStatus(t, w, http.StatusOK)
	var resp testResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("bad operation response %s: %v", w.Body.String(), err)
	}
	if resp.Result.ID == "" {
		t.Fatalf("no stored result in %s", w.Body.String())
	}
	return resp
}

func TestHelpAndInfo(t *testing.T) {
	s := newTestServer(t, nil)
	w := request(t, s, "GET", "/api/help", nil)
	checkStatus(t, w, http.StatusOK)
	if !strings.Contains(w.Body.String(), "/api/reseg") {
		t.Errorf("help does not describe reseg endpoint")
	}
	w = request(t, s, "GET", "/api/server/info", nil)
	checkStatus(t, w, http.StatusOK)
	var info map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	if info["version"] != dvid.Version.String() {
		t.Errorf("bad version in server info: %v", info)
	}
	w = request(t, s, "GET", "/api/nothing", nil)
	checkStatus(t, w, http.StatusNotFound)
}

func TestVolumes(t *testing.T) {
	s := newTestServer(t, nil)
	vol := makeVolume(dvid.Point3d{3, 2, 1}, []int32{1, 2, 3, 4, 5, 600})
	id := upload(t, s, vol)
	checkData(t, "lbv download", download(t, s, id).Data, vol.Data)

	w := request(t, s, "GET", "/api/volumes/"+id+"?format=png", nil)
	checkStatus(t, w, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %s", ct)
	}
	img, err := imageio.ReadImage(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	checkData(t, "png download", img.Data, vol.Data)

	w = request(t, s, "GET", "/api/volumes/"+id+"?format=bmp", nil)
	checkStatus(t, w, http.StatusBadRequest)

	w = request(t, s, "GET", "/api/volumes/"+id+"/info", nil)
	checkStatus(t, w, http.StatusOK)

	w = request(t, s, "GET", "/api/volumes", nil)
	checkStatus(t, w, http.StatusOK)
	var list []storage.Result
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != id {
		t.Errorf("bad volume list %v", list)
	}

	w = request(t, s, "DELETE", "/api/volumes/"+id, nil)
	checkStatus(t, w, http.StatusNoContent)
	w = request(t, s, "GET", "/api/volumes/"+id, nil)
	checkStatus(t, w, http.StatusNotFound)
	w = request(t, s, "GET", "/api/volumes/"+id+"/info", nil)
	checkStatus(t, w, http.StatusNotFound)

	w = request(t, s, "POST", "/api/volumes", strings.NewReader("garbage"))
	checkStatus(t, w, http.StatusBadRequest)
}

func TestUploadImage(t *testing.T) {
	s := newTestServer(t, nil)
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.SetGray(1, 0, color.Gray{Y: 7})
	img.SetGray(1, 1, color.Gray{Y: 9})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	w := request(t, s, "POST", "/api/volumes", &buf, "Content-Type", "image/png")
	checkStatus(t, w, http.StatusOK)
	var info storage.Result
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatal(err)
	}
	checkData(t, "uploaded image", download(t, s, info.ID).Data, []int32{0, 7, 0, 9})
}

func TestReseg(t *testing.T) {
	s := newTestServer(t, nil)
	mask := volume.New(dvid.Point3d{5, 5, 1})
	for i := range mask.Data {
		mask.Data[i] = 1
	}
	id := upload(t, s, mask)

	resp := decodeOp(t, postJSON(t, s, "/api/reseg", fmt.Sprintf(`{"labels": %q, "seeds": [[0, 0], [4, 4]], "name": "split"}`, id)))
	if len(resp.Sizes) != 2 || resp.Sizes[0]+resp.Sizes[1] != 25 || resp.Sizes[0] == 0 || resp.Sizes[1] == 0 {
		t.Errorf("bad region sizes %v", resp.Sizes)
	}
	if resp.Result.Operation != "reseg" || resp.Result.Name != "split" {
		t.Errorf("bad result metadata %+v", resp.Result)
	}
	out := download(t, s, resp.Result.ID)
	if out.Data[0] != 1 || out.Data[24] != 2 {
		t.Errorf("seeds not in their own regions: %v", out.Data)
	}

	// a feature image with a vertical edge between x=1 and x=2
	features := volume.New(mask.Size)
	for i := range features.Data {
		if i%5 >= 2 {
			features.Data[i] = 100
		}
	}
	fid := upload(t, s, features)
	resp = decodeOp(t, postJSON(t, s, "/api/reseg", fmt.Sprintf(`{"labels": %q, "features": %q, "seeds": [[0, 2], [4, 2]], "connectivity": "4"}`, id, fid)))
	if resp.Sizes[0] != 10 || resp.Sizes[1] != 15 {
		t.Errorf("expected split at feature edge, got sizes %v", resp.Sizes)
	}

	for _, body := range []string{
		`{"labels": "x"}`,
		`{"labels": "x", "seeds": [[0, 0]]}`,
		`{"labels": "x", "seeds": [[0, 0], [1, 1]], "arc": "sobel"}`,
		`not json`,
		fmt.Sprintf(`{"labels": %q, "seeds": [[0, 0], [0, 0]]}`, id),
		fmt.Sprintf(`{"labels": %q, "seeds": [[0, 0], [9, 9]]}`, id),
		fmt.Sprintf(`{"labels": %q, "seeds": [[0, 0], [1, 1]], "connectivity": "26"}`, id),
		fmt.Sprintf(`{"labels": %q, "seeds": [[0, 0], [1, 1]], "arc": "feature"}`, id),
	} {
		w := postJSON(t, s, "/api/reseg", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("request %s: expected status 400, got %d: %s", body, w.Code, w.Body.String())
		}
		var msg map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &msg); err != nil || msg["error"] == "" {
			t.Errorf("request %s: expected JSON error, got %s", body, w.Body.String())
		}
	}
	w := postJSON(t, s, "/api/reseg", `{"labels": "unknown", "seeds": [[0, 0], [1, 1]]}`)
	checkStatus(t, w, http.StatusNotFound)
}

func TestRelabelAndGraph(t *testing.T) {
	s := newTestServer(t, nil)
	vol := makeVolume(dvid.Point3d{4, 2, 1}, []int32{
		5, 0, 5, 5,
		5, 0, 6, 6,
	})
	id := upload(t, s, vol)
	resp := decodeOp(t, postJSON(t, s, "/api/relabel", fmt.Sprintf(`{"labels": %q, "connectivity": "4"}`, id)))
	if len(resp.Components) != 1 || resp.Components[0] != 3 {
		t.Errorf("expected 3 components, got %v", resp.Components)
	}
	checkData(t, "relabeled", download(t, s, resp.Result.ID).Data, []int32{
		1, 0, 2, 2,
		1, 0, 3, 3,
	})

	resp = decodeOp(t, postJSON(t, s, "/api/relabel", fmt.Sprintf(`{"labels": %q, "slices": true}`, id)))
	if len(resp.Components) != 1 || resp.Components[0] != 3 {
		t.Errorf("expected 3 components in the one slice, got %v", resp.Components)
	}

	grid := upload(t, s, makeVolume(dvid.Point3d{2, 2, 1}, []int32{1, 2, 3, 4}))
	for i := 0; i < 2; i++ {
		w := request(t, s, "GET", "/api/volumes/"+grid+"/graph?connectivity=4", nil)
		checkStatus(t, w, http.StatusOK)
		var g graphResponse
		if err := json.Unmarshal(w.Body.Bytes(), &g); err != nil {
			t.Fatal(err)
		}
		expected := [][2]int32{{1, 2}, {1, 3}, {2, 4}, {3, 4}}
		if g.MaxLabel != 4 || len(g.Edges) != len(expected) {
			t.Fatalf("bad graph %+v", g)
		}
		for k := range expected {
			if g.Edges[k] != expected[k] {
				t.Errorf("expected edges %v, got %v", expected, g.Edges)
				break
			}
		}
	}
	w := request(t, s, "GET", "/api/volumes/"+grid+"/graph?connectivity=5", nil)
	checkStatus(t, w, http.StatusBadRequest)
	w = request(t, s, "GET", "/api/volumes/"+grid+"/graph?background=maybe", nil)
	checkStatus(t, w, http.StatusBadRequest)
}

func TestMultiscale(t *testing.T) {
	s := newTestServer(t, nil)
	stack := makeVolume(dvid.Point3d{6, 2, 3}, []int32{
		1, 2, 3, 4, 5, 6,
		1, 2, 3, 4, 5, 6,

		1, 1, 1, 2, 2, 2,
		1, 1, 1, 2, 2, 2,

		1, 1, 1, 1, 1, 1,
		1, 1, 1, 1, 1, 1,
	})
	id := upload(t, s, stack)
	sides := []int32{
		1, 1, 1, 2, 2, 2,
		1, 1, 1, 2, 2, 2,
	}
	resp := decodeOp(t, postJSON(t, s, "/api/multiscale", fmt.Sprintf(`{"stack": %q, "anchors": [[0, 0], [5, 0]], "connectivity": "4"}`, id)))
	if resp.Steps == nil || *resp.Steps != 3 {
		t.Errorf("expected 3 steps, got %v", resp.Steps)
	}
	out := download(t, s, resp.Result.ID)
	if out.Size != stack.Size {
		t.Fatalf("expected stack size %s, got %s", stack.Size, out.Size)
	}
	checkData(t, "scale 0", out.Data[:12], sides)

	resp = decodeOp(t, postJSON(t, s, "/api/multiscale", fmt.Sprintf(`{"stack": %q, "anchors": [[0, 0], [5, 0]], "connectivity": "4", "segment": true}`, id)))
	if resp.Result.Operation != "multiscale-segment" {
		t.Errorf("bad operation %q", resp.Result.Operation)
	}
	checkData(t, "segment", download(t, s, resp.Result.ID).Data, sides)

	w := postJSON(t, s, "/api/multiscale", fmt.Sprintf(`{"stack": %q, "anchors": [[0, 0], [0, 1]]}`, id))
	checkStatus(t, w, http.StatusBadRequest)
}

func TestSelectMergeVoronoi(t *testing.T) {
	s := newTestServer(t, nil)
	labels := makeVolume(dvid.Point3d{3, 2, 1}, []int32{4, 4, 2, 1, 4, 2})
	id := upload(t, s, labels)
	resp := decodeOp(t, postJSON(t, s, "/api/select", fmt.Sprintf(`{"labels": %q, "point": [1, 0]}`, id)))
	if resp.Sizes[0] != 3 {
		t.Errorf("expected 3 selected voxels, got %v", resp.Sizes)
	}
	checkData(t, "selected", download(t, s, resp.Result.ID).Data, []int32{1, 1, 0, 0, 1, 0})

	reseg := upload(t, s, makeVolume(labels.Size, []int32{1, 2, 0, 0, 2, 0}))
	resp = decodeOp(t, postJSON(t, s, "/api/merge", fmt.Sprintf(`{"labels": %q, "reseg": %q}`, id, reseg)))
	checkData(t, "merged", download(t, s, resp.Result.ID).Data, []int32{4, 5, 2, 1, 5, 2})

	body := `{"size": [8, 6], "seeds": 3, "random_seed": 7}`
	resp = decodeOp(t, postJSON(t, s, "/api/voronoi", body))
	if len(resp.Sizes) != 3 || resp.Sizes[0]+resp.Sizes[1]+resp.Sizes[2] != 48 {
		t.Errorf("bad voronoi sizes %v", resp.Sizes)
	}
	first := download(t, s, resp.Result.ID)
	again := download(t, s, decodeOp(t, postJSON(t, s, "/api/voronoi", body)).Result.ID)
	checkData(t, "repeated voronoi", again.Data, first.Data)

	w := postJSON(t, s, "/api/voronoi", `{"size": [2, 2], "seeds": 9}`)
	checkStatus(t, w, http.StatusBadRequest)
}

func TestAuthorization(t *testing.T) {
	dir := t.TempDir()
	authFile := filepath.Join(dir, "auth.json")
	if err := os.WriteFile(authFile, []byte(`{"alice": "read", "bob": "readwrite"}`), 0644); err != nil {
		t.Fatal(err)
	}
	config := DefaultConfig()
	config.Auth = authConfig{AuthFile: authFile, SecretKey: "sssh"}
	s := newTestServer(t, config)

	w := request(t, s, "GET", "/api/volumes", nil)
	checkStatus(t, w, http.StatusUnauthorized)
	w = request(t, s, "GET", "/api/help", nil)
	checkStatus(t, w, http.StatusOK)

	alice, err := GenerateJWT(config, "alice")
	if err != nil {
		t.Fatal(err)
	}
	bob, err := GenerateJWT(config, "bob")
	if err != nil {
		t.Fatal(err)
	}
	carol, err := GenerateJWT(config, "carol")
	if err != nil {
		t.Fatal(err)
	}
	body := `{"size": [4, 4], "seeds": 2, "random_seed": 1}`

	w = request(t, s, "GET", "/api/volumes", nil, "Authorization", "Bearer "+alice)
	checkStatus(t, w, http.StatusOK)
	w = request(t, s, "POST", "/api/voronoi", strings.NewReader(body), "Authorization", "Bearer "+alice)
	checkStatus(t, w, http.StatusUnauthorized)
	w = request(t, s, "POST", "/api/voronoi", strings.NewReader(body), "Authorization", "Bearer "+bob)
	checkStatus(t, w, http.StatusOK)
	w = request(t, s, "GET", "/api/volumes", nil, "Authorization", "Bearer "+carol)
	checkStatus(t, w, http.StatusUnauthorized)
	w = request(t, s, "GET", "/api/volumes", nil, "Authorization", "Bearer not.a.token")
	checkStatus(t, w, http.StatusUnauthorized)

	other := &Config{Auth: authConfig{SecretKey: "other"}}
	forged, err := GenerateJWT(other, "bob")
	if err != nil {
		t.Fatal(err)
	}
	w = request(t, s, "GET", "/api/volumes", nil, "Authorization", "Bearer "+forged)
	checkStatus(t, w, http.StatusUnauthorized)

	if _, err := GenerateJWT(DefaultConfig(), "bob"); err == nil {
		t.Errorf("expected error generating token without secret key")
	}
}

func TestDenyRequests(t *testing.T) {
	s := newTestServer(t, nil)
	dvid.DenyRequests()
	w := request(t, s, "GET", "/api/help", nil)
	dvid.AllowRequests()
	checkStatus(t, w, http.StatusServiceUnavailable)
	w = request(t, s, "GET", "/api/help", nil)
	checkStatus(t, w, http.StatusOK)
}

func TestUploadLimit(t *testing.T) {
	config := DefaultConfig()
	config.Server.MaxUpload = 1
	s := newTestServer(t, config)
	w := request(t, s, "POST", "/api/volumes", bytes.NewReader(make([]byte, 2*dvid.Mega)))
	checkStatus(t, w, http.StatusRequestEntityTooLarge)
}

func TestVoxelLimit(t *testing.T) {
	config := DefaultConfig()
	config.Server.MaxVoxels = 100
	s := newTestServer(t, config)

	w := postJSON(t, s, "/api/voronoi", `{"size": [60000, 60000, 60], "seeds": 2}`)
	checkStatus(t, w, http.StatusBadRequest)
	w = postJSON(t, s, "/api/voronoi", `{"size": [11, 10], "seeds": 2}`)
	checkStatus(t, w, http.StatusBadRequest)
	w = postJSON(t, s, "/api/voronoi", `{"size": [10, 10], "seeds": 2, "random_seed": 3}`)
	checkStatus(t, w, http.StatusOK)

	// A header claiming a huge volume is refused before the labels are read.
	header := imageio.LabelVolumeHeader{
		Version:     imageio.LabelVolumeVersion.String(),
		Size:        dvid.Point3d{60000, 60000, 60},
		Compression: dvid.Zstd,
	}
	data, err := header.MarshalMsg(nil)
	if err != nil {
		t.Fatal(err)
	}
	payload, err := dvid.SerializeData(make([]byte, 400), dvid.Zstd, dvid.CRC32)
	if err != nil {
		t.Fatal(err)
	}
	w = request(t, s, "POST", "/api/volumes", bytes.NewReader(append(data, payload...)))
	checkStatus(t, w, http.StatusBadRequest)

	// Labels that uncompress past the size in the header are refused.
	header.Size = dvid.Point3d{10, 10, 1}
	if data, err = header.MarshalMsg(nil); err != nil {
		t.Fatal(err)
	}
	if payload, err = dvid.SerializeData(make([]byte, dvid.Mega), dvid.Zstd, dvid.CRC32); err != nil {
		t.Fatal(err)
	}
	w = request(t, s, "POST", "/api/volumes", bytes.NewReader(append(data, payload...)))
	checkStatus(t, w, http.StatusBadRequest)

	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 20, 20))); err != nil {
		t.Fatal(err)
	}
	w = request(t, s, "POST", "/api/volumes", &buf, "Content-Type", "image/png")
	checkStatus(t, w, http.StatusBadRequest)

	upload(t, s, makeVolume(dvid.Point3d{10, 10, 1}, nil))
}

func TestBlobStore(t *testing.T) {
	store, _, err := storage.OpenStore(storage.Config{BlobURL: "mem://"})
	if err != nil {
		t.Fatalf("can't open blob store: %v", err)
	}
	defer store.Close()
	s, err := New(DefaultConfig(), store)
	if err != nil {
		t.Fatal(err)
	}
	vol := makeVolume(dvid.Point3d{3, 2, 1}, []int32{1, 1, 2, 0, 2, 2})
	id := upload(t, s, vol)
	checkData(t, "blob download", download(t, s, id).Data, vol.Data)
	w := request(t, s, "DELETE", "/api/volumes/"+id, nil)
	checkStatus(t, w, http.StatusNoContent)
	w = request(t, s, "GET", "/api/volumes/"+id+"/info", nil)
	checkStatus(t, w, http.StatusNotFound)
}
