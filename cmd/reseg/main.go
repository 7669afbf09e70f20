// Command-line interface for seed-driven re-segmentation of label images and volumes.
// Operations run locally on image files, folders of slices and .lbv label volumes, or
// are served over HTTP with the "serve" command.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/janelia-flyem/reseg/adjacency"
	"github.com/janelia-flyem/reseg/dvid"
	"github.com/janelia-flyem/reseg/ift"
	"github.com/janelia-flyem/reseg/imageio"
	"github.com/janelia-flyem/reseg/labels"
	"github.com/janelia-flyem/reseg/multiscale"
	"github.com/janelia-flyem/reseg/server"
	"github.com/janelia-flyem/reseg/storage"
	"github.com/janelia-flyem/reseg/volume"
)

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Address for http communication, overriding any config file.
	httpAddress = flag.String("http", "", "")

	// Rotating log file.  Leave unset to log to stderr.
	logFile = flag.String("log", "", "")

	// Profile CPU usage using standard gotest system.
	cpuprofile = flag.String("cpuprofile", "", "")

	// Profile memory usage using standard gotest system.
	memprofile = flag.String("memprofile", "", "")

	// Number of logical CPUs and cost map workers.
	useCPU = flag.Int("numcpu", 0, "")
)

const helpMessage = `
reseg splits regions of label images and volumes between two seeds

Usage: reseg [options] <command>

      -http       =string   Address for HTTP communication (serve).
      -log        =string   Rotating log file.  Logs go to stderr if unset.
      -cpuprofile =string   Write CPU profile to this file.
      -memprofile =string   Write memory profile to this file on exit.
      -numcpu     =number   Number of logical CPUs to use.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Inputs are 2d images (png, tif, bmp, ppm, pgm, gif, jpg), folders of 2d slices, or .lbv
label volumes.  Outputs are written by extension: .lbv, a 2d image, or a folder of png
slices for volumes and folder inputs.  Seed files hold "Type;X;Y[;Z]" rows of type
"Seed" or "Superpixel".

Commands:

	about
	help

	reseg <labels> <seeds file> <output> [img=<features>] [connectivity=<n>]
	      [arc=uniform|feature|root|lab] [path=max|sum|power:<p>]
		Splits the nonzero voxels of <labels> into regions 1 and 2 grown from the
		first two seeds.  With img, arcs weigh feature differences of that image.

	relabel <labels> <output> [connectivity=<n>] [slices=true]
		Gives every connected component its own label.

	graph <labels> [connectivity=<n>] [background=true]
		Prints the region-adjacency graph, one "a b" edge per line.

	multiscale <stack> <seeds file> <output> [steps=<n>] [connectivity=4|8]
	           [relabel=true] [crop=true] [segment=true] [path=...]
		Walks the first two seeds across the scales (z slices) of a stack.

	select <labels> <seeds file> <output>
		Writes a mask of the region under the first "Superpixel" row.

	merge <labels> <reseg> <output>
		Splits the regions of <labels> along side 2 of a re-segmentation.

	voronoi <output> size=<w>,<h>[,<d>] seeds=<n> [random=<seed>]
		Writes a random Voronoi label image.

	serve [config file]
		Serves the operations over HTTP.  Without a config file results are kept in
		memory.

	token <config file> <user>
		Prints a JWT for the user signed with the configured secret key.
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() {
		fmt.Print(helpMessage)
	}
	flag.Parse()

	if flag.NArg() >= 1 && strings.ToLower(flag.Args()[0]) == "help" {
		*showHelp = true
	}
	if *runVerbose {
		dvid.SetLogMode(dvid.DebugMode)
	}
	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}
	if *logFile != "" {
		logConfig := dvid.LogConfig{Logfile: *logFile, MaxSize: 100, MaxAge: 30}
		logConfig.SetLogger()
	}

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
	}
	if *useCPU != 0 {
		runtime.GOMAXPROCS(*useCPU)
	}

	// Capture ctrl+c and other interrupts and cancel running work.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := DoCommand(ctx, dvid.Command(flag.Args()))
	stop()

	if *cpuprofile != "" {
		pprof.StopCPUProfile()
	}
	if *memprofile != "" {
		if f, err := os.Create(*memprofile); err == nil {
			pprof.WriteHeapProfile(f)
			f.Close()
		}
	}
	dvid.Shutdown()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// DoCommand serves as a switchboard for commands.
func DoCommand(ctx context.Context, cmd dvid.Command) error {
	if len(cmd) == 0 {
		return fmt.Errorf("blank command: %w", dvid.ErrInvalidArgument)
	}
	switch cmd.Name() {
	case "about":
		fmt.Printf("reseg %s\n", dvid.Version)
		return nil
	case "reseg":
		return DoReseg(ctx, cmd)
	case "relabel":
		return DoRelabel(cmd)
	case "graph":
		return DoGraph(cmd)
	case "multiscale":
		return DoMultiscale(ctx, cmd)
	case "select":
		return DoSelect(cmd)
	case "merge":
		return DoMerge(cmd)
	case "voronoi":
		return DoVoronoi(ctx, cmd)
	case "serve":
		return DoServe(ctx, cmd)
	case "token":
		return DoToken(cmd)
	default:
		return fmt.Errorf("unknown command %q, try 'reseg help': %w", cmd.Name(), dvid.ErrInvalidArgument)
	}
}

// arguments returns the n positional arguments after the command name or an error
// describing the expected usage.
func arguments(cmd dvid.Command, usage ...string) ([]string, error) {
	args := make([]string, len(usage))
	for i := range usage {
		if args[i] = cmd.Argument(i + 1); args[i] == "" {
			return nil, fmt.Errorf("%s command must be followed by %s: %w", cmd.Name(), strings.Join(usage, " "), dvid.ErrInvalidArgument)
		}
	}
	return args, nil
}

func workers() int {
	if *useCPU > 0 {
		return *useCPU
	}
	return runtime.NumCPU()
}

// DoReseg performs the "reseg" command.
func DoReseg(ctx context.Context, cmd dvid.Command) error {
	args, err := arguments(cmd, "<labels>", "<seeds file>", "<output>")
	if err != nil {
		return err
	}
	mask, isFolder, err := imageio.LoadAny(args[0])
	if err != nil {
		return err
	}
	table, err := imageio.LoadSeedTable(args[1])
	if err != nil {
		return err
	}
	seeds, err := table.Seeds()
	if err != nil {
		return err
	}
	settings := cmd.Settings()
	var features *volume.Features
	if img, found := settings.GetString("img"); found {
		if features, err = imageio.LoadAnyFeatures(img); err != nil {
			return err
		}
	}
	conn, _ := settings.GetString("connectivity")
	arc, _ := settings.GetString("arc")
	path, _ := settings.GetString("path")
	opts, err := ift.ParseOptions(conn, arc, path, workers(), features, mask.Size)
	if err != nil {
		return err
	}
	out, err := ift.Reseg(ctx, mask, seeds, opts)
	if err != nil {
		return err
	}
	return imageio.Write(out, args[2], isFolder)
}

func connectivity(settings dvid.Config, defaultConn adjacency.Connectivity) (*adjacency.Relation, error) {
	conn := defaultConn
	if s, found := settings.GetString("connectivity"); found {
		var err error
		if conn, err = adjacency.ParseConnectivity(s); err != nil {
			return nil, err
		}
	}
	return adjacency.ForConnectivity(conn)
}

// DoRelabel performs the "relabel" command.
func DoRelabel(cmd dvid.Command) error {
	args, err := arguments(cmd, "<labels>", "<output>")
	if err != nil {
		return err
	}
	settings := cmd.Settings()
	slices, err := settings.GetBool("slices", false)
	if err != nil {
		return err
	}
	vol, isFolder, err := imageio.LoadAny(args[0])
	if err != nil {
		return err
	}
	adj, err := connectivity(settings, adjacency.Default(vol.Is3D() && !slices))
	if err != nil {
		return err
	}
	var out *volume.Volume
	if slices {
		var counts []int32
		if out, counts, err = labels.RelabelSlices(vol, adj); err != nil {
			return err
		}
		dvid.Infof("Relabeled %d slices into %v components\n", len(counts), counts)
	} else {
		var n int32
		out, n = labels.Relabel(vol, adj)
		dvid.Infof("Relabeled %s into %d components\n", args[0], n)
	}
	return imageio.Write(out, args[1], isFolder)
}

// DoGraph performs the "graph" command.
func DoGraph(cmd dvid.Command) error {
	args, err := arguments(cmd, "<labels>")
	if err != nil {
		return err
	}
	settings := cmd.Settings()
	background, err := settings.GetBool("background", false)
	if err != nil {
		return err
	}
	vol, _, err := imageio.LoadAny(args[0])
	if err != nil {
		return err
	}
	adj, err := connectivity(settings, adjacency.Default(vol.Is3D()))
	if err != nil {
		return err
	}
	g := labels.BuildGraph(vol, adj, labels.GraphOptions{IncludeBackground: background})
	for _, pair := range g.Pairs() {
		if pair[0] < pair[1] {
			fmt.Printf("%d %d\n", pair[0], pair[1])
		}
	}
	return nil
}

// DoMultiscale performs the "multiscale" command.
func DoMultiscale(ctx context.Context, cmd dvid.Command) error {
	args, err := arguments(cmd, "<stack>", "<seeds file>", "<output>")
	if err != nil {
		return err
	}
	settings := cmd.Settings()
	var opts multiscale.WalkerOptions
	if opts.Relabel, err = settings.GetBool("relabel", false); err != nil {
		return err
	}
	if opts.Crop, err = settings.GetBool("crop", false); err != nil {
		return err
	}
	segment, err := settings.GetBool("segment", false)
	if err != nil {
		return err
	}
	steps, err := settings.GetInt("steps", 0)
	if err != nil {
		return err
	}
	if s, found := settings.GetString("connectivity"); found {
		if opts.Connectivity, err = adjacency.ParseConnectivity(s); err != nil {
			return err
		}
	}
	path, _ := settings.GetString("path")
	pathCost, err := ift.ParsePathCost(path)
	if err != nil {
		return err
	}

	stack, isFolder, err := imageio.LoadAny(args[0])
	if err != nil {
		return err
	}
	table, err := imageio.LoadSeedTable(args[1])
	if err != nil {
		return err
	}
	anchors, err := table.Seeds()
	if err != nil {
		return err
	}
	walker, err := multiscale.NewWalker(stack, anchors, opts)
	if err != nil {
		return err
	}
	if err := walker.Run(ctx, steps); err != nil {
		return err
	}
	out := walker.Result()
	if segment {
		if out, err = walker.Segment(ctx, ift.Options{Path: pathCost, Workers: workers()}); err != nil {
			return err
		}
		isFolder = false
	}
	dvid.Infof("Walked %d steps over %s stack %s\n", walker.Steps(), stack.Size, args[0])
	return imageio.Write(out, args[2], isFolder)
}

// DoSelect performs the "select" command.
func DoSelect(cmd dvid.Command) error {
	args, err := arguments(cmd, "<labels>", "<seeds file>", "<output>")
	if err != nil {
		return err
	}
	vol, isFolder, err := imageio.LoadAny(args[0])
	if err != nil {
		return err
	}
	table, err := imageio.LoadSeedTable(args[1])
	if err != nil {
		return err
	}
	p, err := table.Superpixel()
	if err != nil {
		return err
	}
	mask, err := multiscale.SelectSuperpixel(vol, p)
	if err != nil {
		return err
	}
	return imageio.Write(mask, args[2], isFolder)
}

// DoMerge performs the "merge" command.
func DoMerge(cmd dvid.Command) error {
	args, err := arguments(cmd, "<labels>", "<reseg>", "<output>")
	if err != nil {
		return err
	}
	vol, isFolder, err := imageio.LoadAny(args[0])
	if err != nil {
		return err
	}
	reseg, _, err := imageio.LoadAny(args[1])
	if err != nil {
		return err
	}
	out, err := multiscale.Merge(vol, reseg)
	if err != nil {
		return err
	}
	return imageio.Write(out, args[2], isFolder)
}

// DoVoronoi performs the "voronoi" command.
func DoVoronoi(ctx context.Context, cmd dvid.Command) error {
	args, err := arguments(cmd, "<output>")
	if err != nil {
		return err
	}
	settings := cmd.Settings()
	sizeStr, found := settings.GetString("size")
	if !found {
		return fmt.Errorf("voronoi command needs size=<w>,<h>[,<d>]: %w", dvid.ErrInvalidArgument)
	}
	size := dvid.Point3d{1, 1, 1}
	parts := strings.Split(sizeStr, ",")
	if len(parts) < 2 || len(parts) > 3 {
		return fmt.Errorf("bad voronoi size %q: %w", sizeStr, dvid.ErrInvalidArgument)
	}
	for k, part := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return fmt.Errorf("bad voronoi size %q: %w", sizeStr, dvid.ErrInvalidArgument)
		}
		size[k] = int32(v)
	}
	numSeeds, err := settings.GetInt("seeds", 0)
	if err != nil {
		return err
	}
	seed, err := settings.GetInt("random", int(time.Now().UnixNano()))
	if err != nil {
		return err
	}
	out, err := ift.Voronoi(ctx, size, numSeeds, rand.New(rand.NewSource(int64(seed))))
	if err != nil {
		return err
	}
	return imageio.Write(out, args[0], false)
}

// DoServe opens the result store and serves HTTP requests until interrupted.
func DoServe(ctx context.Context, cmd dvid.Command) error {
	config := server.DefaultConfig()
	if filename := cmd.Argument(1); filename != "" {
		var err error
		if config, err = server.LoadConfig(filename); err != nil {
			return err
		}
	}
	if *httpAddress != "" {
		config.Server.HTTPAddress = *httpAddress
	}
	if *logFile == "" {
		config.Logging.SetLogger()
	}
	if *useCPU > 0 && config.Reseg.Workers == 1 {
		config.Reseg.Workers = *useCPU
	}
	store, created, err := storage.OpenStore(config.Store)
	if err != nil {
		return err
	}
	defer store.Close()
	if created {
		dvid.Infof("Created new result store %s\n", store)
	}
	s, err := server.New(config, store)
	if err != nil {
		return err
	}
	return s.Serve(ctx)
}

// DoToken performs the "token" command.
func DoToken(cmd dvid.Command) error {
	args, err := arguments(cmd, "<config file>", "<user>")
	if err != nil {
		return err
	}
	config, err := server.LoadConfig(args[0])
	if err != nil {
		return err
	}
	token, err := server.GenerateJWT(config, args[1])
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
