// detcfg reads, checks, fingerprints, converts, archives and serves
// detection configuration documents.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/nvr-ai/go-detcfg/common"
	"github.com/nvr-ai/go-detcfg/config"
	"github.com/nvr-ai/go-detcfg/models"
	"github.com/nvr-ai/go-detcfg/models/model"
	"github.com/nvr-ai/go-detcfg/models/resnet"
	"github.com/nvr-ai/go-detcfg/models/yolohead"
	"github.com/nvr-ai/go-detcfg/models/yolov3"
	"github.com/nvr-ai/go-detcfg/serve"
	"github.com/nvr-ai/go-detcfg/store"
	"github.com/nvr-ai/go-detcfg/util"
)

const usage = `detcfg interprets detection configuration documents.

Usage:
  detcfg validate [--dir] <path>...
  detcfg inspect [--json] <file>
  detcfg fingerprint [--short] <file>...
  detcfg convert [--to <yaml|json>] [-o <file>] <file>
  detcfg archive <add|list|get|rm> [--db <path>] [args]
  detcfg serve [--listen <addr>] [--db <path>] [--no-archive]

Exit codes: 0 on success, 1 when a document is invalid, 2 on usage or
I/O errors.
`

// DefaultArchivePath is where archive commands look for the database
// unless --db says otherwise.
const DefaultArchivePath = "detcfg.db"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	switch args[0] {
	case "validate":
		return runValidate(args[1:])
	case "inspect":
		return runInspect(args[1:])
	case "fingerprint":
		return runFingerprint(args[1:])
	case "convert":
		return runConvert(args[1:])
	case "archive":
		return runArchive(args[1:])
	case "serve":
		return runServe(args[1:])
	case "help", "--help", "-h":
		fmt.Print(usage)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n%s", args[0], usage)
		return 2
	}
}

// exitCode separates document problems from everything else.
func exitCode(err error) int {
	var pe *config.ParseError
	var se *config.SchemaError
	var ve *config.ValidationError
	if errors.As(err, &pe) || errors.As(err, &se) || errors.As(err, &ve) {
		return 1
	}
	return 2
}

func fail(err error) int {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	return exitCode(err)
}

func runValidate(args []string) int {
	flags := pflag.NewFlagSet("validate", pflag.ContinueOnError)
	dir := flags.Bool("dir", false, "treat arguments as directories of documents")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if len(flags.Args()) == 0 {
		fmt.Fprintln(os.Stderr, "validate needs at least one path")
		return 2
	}

	var docs []util.ConfigFile
	for _, path := range flags.Args() {
		if *dir {
			files, err := util.LoadDirectoryConfigFiles(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				return 2
			}
			docs = append(docs, files...)
		} else {
			data, err := os.ReadFile(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				return 2
			}
			docs = append(docs, util.ConfigFile{Path: path, Data: data})
		}
	}

	invalid := 0
	for _, doc := range docs {
		m, err := interpretDocument(doc)
		if err != nil {
			invalid++
			fmt.Printf("❌ %s: %v\n", doc.Path, err)
			continue
		}
		fmt.Printf("✅ %s: %s, %s, %d classes\n",
			doc.Path, m.Architecture, m.Run.Metric, m.Run.NumClasses)
		for _, w := range m.Warnings {
			fmt.Printf("   ⚠️  %s\n", w)
		}
	}
	if invalid > 0 {
		fmt.Printf("\n%d of %d documents invalid\n", invalid, len(docs))
		return 1
	}
	return 0
}

func runInspect(args []string) int {
	flags := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	asJSON := flags.Bool("json", false, "machine-readable output")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if len(flags.Args()) != 1 {
		fmt.Fprintln(os.Stderr, "inspect needs exactly one file")
		return 2
	}
	m, err := models.Load(flags.Args()[0])
	if err != nil {
		return fail(err)
	}

	report := buildReport(m)
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 2
		}
		return 0
	}

	fmt.Printf("architecture: %s\n", report.Architecture)
	fmt.Printf("metric:       %s (map_type %s)\n", report.Metric, report.MapType)
	fmt.Printf("num_classes:  %d\n", report.NumClasses)
	fmt.Printf("fingerprint:  %s\n", report.Fingerprint)
	if b := report.Backbone; b != nil {
		fmt.Printf("backbone:     %s-%d  norm %s  freeze_at %d  feature maps %v\n",
			b.Section, b.Depth, b.NormType, b.FreezeAt, b.FeatureMaps)
	}
	if h := report.Head; h != nil {
		fmt.Printf("head:         %s  ignore_thresh %g  label_smooth %t\n",
			h.Section, h.IgnoreThresh, h.LabelSmooth)
		for _, group := range h.AnchorGroups {
			fmt.Printf("  group %d", group.Group)
			if group.Scale > 0 {
				fmt.Printf(" (scale %d)", group.Scale)
			}
			fmt.Print(":")
			for _, a := range group.Anchors {
				fmt.Printf("  %s a=%.0f r=%.2f", a.Anchor, a.Area, a.AspectRatio)
			}
			fmt.Println()
		}
		n := h.NMS
		fmt.Printf("nms:          keep_top_k %d  nms_threshold %g  nms_top_k %d  score_threshold %g  background_label %d\n",
			n.KeepTopK, n.NMSThreshold, n.NMSTopK, n.ScoreThreshold, n.BackgroundLabel)
	}
	fmt.Printf("sections:     %s\n", strings.Join(report.Sections, ", "))
	for _, w := range report.Warnings {
		fmt.Printf("⚠️  %s\n", w)
	}
	return 0
}

// inspectReport is the machine-readable model summary. The backbone
// and head blocks appear when the architecture exposes them.
type inspectReport struct {
	Architecture string          `json:"architecture"`
	Metric       string          `json:"metric"`
	MapType      string          `json:"map_type"`
	NumClasses   int             `json:"num_classes"`
	Fingerprint  string          `json:"fingerprint"`
	Backbone     *backboneReport `json:"backbone,omitempty"`
	Head         *headReport     `json:"head,omitempty"`
	Sections     []string        `json:"sections"`
	Warnings     []string        `json:"warnings,omitempty"`
}

type backboneReport struct {
	Section     string `json:"section"`
	Depth       int    `json:"depth"`
	NormType    string `json:"norm_type"`
	FreezeAt    int    `json:"freeze_at"`
	FeatureMaps []int  `json:"feature_maps"`
}

type headReport struct {
	Section      string        `json:"section"`
	IgnoreThresh float64       `json:"ignore_thresh"`
	LabelSmooth  bool          `json:"label_smooth"`
	AnchorGroups []anchorGroup `json:"anchor_groups"`
	NMS          nmsReport     `json:"nms"`
}

type nmsReport struct {
	BackgroundLabel int     `json:"background_label"`
	KeepTopK        int     `json:"keep_top_k"`
	NMSThreshold    float64 `json:"nms_threshold"`
	NMSTopK         int     `json:"nms_top_k"`
	Normalized      bool    `json:"normalized"`
	ScoreThreshold  float64 `json:"score_threshold"`
}

type anchorGroup struct {
	Group   int            `json:"group"`
	Scale   int            `json:"scale,omitempty"`
	Anchors []anchorReport `json:"anchors"`
}

type anchorReport struct {
	Anchor      common.Anchor `json:"-"`
	Width       float32       `json:"width"`
	Height      float32       `json:"height"`
	Area        float32       `json:"area"`
	AspectRatio float32       `json:"aspect_ratio"`
}

func buildReport(m *model.Model) inspectReport {
	names := make([]string, 0, len(m.Modules))
	for name := range m.Modules {
		names = append(names, name)
	}
	sort.Strings(names)

	report := inspectReport{
		Architecture: m.Architecture,
		Metric:       string(m.Run.Metric),
		MapType:      string(m.Run.MapType),
		NumClasses:   m.Run.NumClasses,
		Fingerprint:  m.Fingerprint.String(),
		Sections:     names,
	}
	for _, w := range m.Warnings {
		report.Warnings = append(report.Warnings, w.String())
	}

	root, ok := m.Root.(*yolov3.YOLOv3)
	if !ok {
		return report
	}

	var scales []int
	if backbone, ok := root.BackboneModule().(*resnet.ResNet); ok {
		scales = backbone.Scales()
		report.Backbone = &backboneReport{
			Section:     backbone.SectionName(),
			Depth:       backbone.Depth,
			NormType:    string(backbone.NormType),
			FreezeAt:    backbone.FreezeAt,
			FeatureMaps: backbone.FeatureMaps,
		}
	}
	if head, ok := root.HeadModule().(*yolohead.Head); ok {
		hr := &headReport{
			Section:      head.SectionName(),
			IgnoreThresh: head.IgnoreThresh,
			LabelSmooth:  head.LabelSmooth,
			NMS: nmsReport{
				BackgroundLabel: head.NMS.BackgroundLabel,
				KeepTopK:        head.NMS.KeepTopK,
				NMSThreshold:    head.NMS.NMSThreshold,
				NMSTopK:         head.NMS.NMSTopK,
				Normalized:      head.NMS.Normalized,
				ScoreThreshold:  head.NMS.ScoreThreshold,
			},
		}
		for i := range head.AnchorMasks {
			group := anchorGroup{Group: i}
			if i < len(scales) {
				group.Scale = scales[i]
			}
			for _, a := range head.AnchorsFor(i) {
				group.Anchors = append(group.Anchors, anchorReport{
					Anchor:      a,
					Width:       a.Width,
					Height:      a.Height,
					Area:        a.Area(),
					AspectRatio: a.AspectRatio(),
				})
			}
			hr.AnchorGroups = append(hr.AnchorGroups, group)
		}
		report.Head = hr
	}
	return report
}

func runFingerprint(args []string) int {
	flags := pflag.NewFlagSet("fingerprint", pflag.ContinueOnError)
	short := flags.BoolP("short", "s", false, "print the short form")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if len(flags.Args()) == 0 {
		fmt.Fprintln(os.Stderr, "fingerprint needs at least one file")
		return 2
	}

	for _, path := range flags.Args() {
		tree, err := config.Load(path)
		if err != nil {
			return fail(err)
		}
		fp, err := tree.Fingerprint()
		if err != nil {
			return fail(err)
		}
		if *short {
			fmt.Printf("%s  %s\n", fp.Short(), path)
		} else {
			fmt.Printf("%s  %s\n", fp, path)
		}
	}
	return 0
}

func runConvert(args []string) int {
	flags := pflag.NewFlagSet("convert", pflag.ContinueOnError)
	to := flags.String("to", "", "target encoding (yaml or json)")
	out := flags.StringP("output", "o", "", "output file (default stdout)")
	if err := flags.Parse(args); err != nil {
		return 2
	}
	if len(flags.Args()) != 1 {
		fmt.Fprintln(os.Stderr, "convert needs exactly one file")
		return 2
	}

	var format config.Format
	switch *to {
	case "yaml", "yml":
		format = config.FormatYAML
	case "json":
		format = config.FormatJSON
	case "":
		if *out == "" {
			fmt.Fprintln(os.Stderr, "convert needs --to or an --output file to infer the encoding from")
			return 2
		}
		format = config.DetectFormat(*out)
	default:
		fmt.Fprintln(os.Stderr, "--to must be yaml or json")
		return 2
	}

	tree, err := config.Load(flags.Args()[0])
	if err != nil {
		return fail(err)
	}
	encoded, err := tree.Encode(format)
	if err != nil {
		return fail(err)
	}

	// A conversion that changes the document's meaning is a bug here,
	// not an input problem. Refuse to emit it.
	reparsed, err := config.Parse(encoded, format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: converted document does not parse: %v\n", err)
		return 2
	}
	before, err := tree.Fingerprint()
	if err != nil {
		return fail(err)
	}
	after, err := reparsed.Fingerprint()
	if err != nil {
		return fail(err)
	}
	if before != after {
		fmt.Fprintln(os.Stderr, "error: conversion changed the document fingerprint")
		return 2
	}

	if *out == "" {
		os.Stdout.Write(encoded)
		return 0
	}
	if err := os.WriteFile(*out, encoded, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	return 0
}

func runArchive(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "archive needs a subcommand: add, list, get or rm")
		return 2
	}
	sub := args[0]

	flags := pflag.NewFlagSet("archive "+sub, pflag.ContinueOnError)
	dbPath := flags.String("db", DefaultArchivePath, "archive database path")
	if err := flags.Parse(args[1:]); err != nil {
		return 2
	}

	archive, err := store.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	defer archive.Close()

	switch sub {
	case "add":
		return archiveAdd(archive, flags.Args())
	case "list":
		return archiveList(archive)
	case "get", "show":
		return archiveGet(archive, flags.Args())
	case "rm":
		return archiveRemove(archive, flags.Args())
	default:
		fmt.Fprintf(os.Stderr, "unknown archive subcommand: %s\n", sub)
		return 2
	}
}

func archiveAdd(archive *store.Store, paths []string) int {
	if len(paths) == 0 {
		fmt.Fprintln(os.Stderr, "archive add needs at least one file")
		return 2
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 2
		}
		doc := util.ConfigFile{Path: path, Data: data}
		m, err := interpretDocument(doc)
		if err != nil {
			return fail(err)
		}
		added, err := archive.Put(store.Record{
			Fingerprint:  m.Fingerprint.String(),
			Architecture: m.Architecture,
			Metric:       string(m.Run.Metric),
			NumClasses:   m.Run.NumClasses,
			Format:       config.DetectFormat(path),
			Document:     data,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 2
		}
		if added {
			fmt.Printf("✅ archived %s  %s\n", m.Fingerprint.Short(), path)
		} else {
			fmt.Printf("already archived %s  %s\n", m.Fingerprint.Short(), path)
		}
	}
	return 0
}

func archiveList(archive *store.Store) int {
	records, err := archive.List()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	tw := tabwriter.NewWriter(os.Stdout, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "FINGERPRINT\tARCHITECTURE\tMETRIC\tCLASSES\tFORMAT\tADDED\n")
	for _, rec := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			rec.Fingerprint[:12], rec.Architecture, rec.Metric,
			rec.NumClasses, rec.Format, rec.AddedAt.Format(time.RFC3339))
	}
	tw.Flush()
	return 0
}

func archiveGet(archive *store.Store, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "archive get needs exactly one fingerprint prefix")
		return 2
	}
	rec, err := archive.Get(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	os.Stdout.Write(rec.Document)
	return 0
}

func archiveRemove(archive *store.Store, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "archive rm needs exactly one fingerprint prefix")
		return 2
	}
	if err := archive.Delete(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	fmt.Printf("removed %s\n", args[0])
	return 0
}

func runServe(args []string) int {
	flags := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	listen := flags.String("listen", "127.0.0.1:8080", "listen address")
	dbPath := flags.String("db", DefaultArchivePath, "archive database path")
	noArchive := flags.Bool("no-archive", false, "serve validation only")
	verbose := flags.BoolP("verbose", "v", false, "debug-level logging")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	log.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	var archive *store.Store
	if !*noArchive {
		var err error
		archive, err = store.Open(*dbPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 2
		}
		defer archive.Close()
	}

	if err := serve.New(archive).ListenAndServe(*listen); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 2
	}
	return 0
}

// interpretDocument parses and builds one loaded document, picking the
// encoding from its file extension.
func interpretDocument(doc util.ConfigFile) (*model.Model, error) {
	tree, err := config.Parse(doc.Data, config.DetectFormat(doc.Path))
	if err != nil {
		return nil, err
	}
	return models.Build(tree)
}
