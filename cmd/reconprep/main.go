// Package main is an offline one-shot processor: it reads a device pose log
// and a frame manifest, synchronizes them, and writes enhanced images, linear
// depth buffers and a result manifest ready for a reconstruction exporter.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/num/quat"

	"github.com/perseusxr/reconprep/capture"
	"github.com/perseusxr/reconprep/rimage"
	"github.com/perseusxr/reconprep/rimage/transform"
)

func main() {
	utils.ContextualMain(mainWithArgs, golog.NewDevelopmentLogger("reconprep"))
}

// manifestFrame is one entry of the input frame manifest: a frame descriptor
// plus the on-disk locations of its image and depth buffer.
type manifestFrame struct {
	capture.FrameDescriptor
	ImagePath string `json:"image"`
	DepthPath string `json:"depth,omitempty"`
}

type frameManifest struct {
	Frames []manifestFrame `json:"frames"`
}

// sampleRecord is one matched frame in the output manifest.
type sampleRecord struct {
	TimestampMS int64      `json:"timestamp_ms"`
	Position    [3]float64 `json:"position"`
	// Orientation is the pose quaternion as (w, x, y, z).
	Orientation [4]float64                         `json:"orientation"`
	Intrinsics  *transform.PinholeCameraIntrinsics `json:"intrinsics"`
	ImagePath   string                             `json:"image"`
	DepthPath   string                             `json:"depth,omitempty"`
}

type dropRecord struct {
	TimestampMS int64  `json:"timestamp_ms"`
	Reason      string `json:"reason"`
}

type resultManifest struct {
	Samples []sampleRecord `json:"samples"`
	Drops   []dropRecord   `json:"drops"`
}

func mainWithArgs(ctx context.Context, args []string, logger golog.Logger) error {
	flags := flag.NewFlagSet(args[0], flag.ExitOnError)
	posesPath := flags.String("poses", "", "pose log CSV (timestamp_ms,px,py,pz,qw,qx,qy,qz)")
	framesPath := flags.String("frames", "", "frame manifest JSON")
	outDir := flags.String("out", "", "output directory")
	toneMap := flags.String("tone-map", string(rimage.ToneMapCLAHE), "tone mapping method (clahe, gamma, or empty for none)")
	claheClip := flags.Float64("clahe-clip", rimage.DefaultCLAHEClipLimit, "CLAHE contrast clip limit")
	gamma := flags.Float64("gamma", 1.0, "gamma correction exponent")
	windowMS := flags.Int64("window-ms", capture.DefaultWindowMS, "pose matching window in milliseconds")
	nearZ := flags.Float64("near", 0.1, "near clip plane for frames that do not carry one")
	farZ := flags.Float64("far", 0, "far clip plane for frames that do not carry one; 0 means infinite")
	estimateOffset := flags.Bool("estimate-offset", false, "estimate and remove a constant clock offset between the pose and frame streams before matching")
	if err := flags.Parse(args[1:]); err != nil {
		return err
	}
	if *posesPath == "" || *framesPath == "" || *outDir == "" {
		return errors.New("-poses, -frames and -out are required")
	}

	if err := ensureOutputDir(*outDir); err != nil {
		return err
	}

	// the pose log and the frame set load independently
	var poses *capture.PoseStream
	var frames []capture.RawFrame
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		poses, err = loadPoseCSV(*posesPath)
		return err
	})
	group.Go(func() error {
		var err error
		frames, err = loadFrames(groupCtx, *framesPath)
		return err
	})
	if err := group.Wait(); err != nil {
		return err
	}
	logger.Infow("inputs loaded", "poses", poses.Len(), "frames", len(frames))

	if *estimateOffset {
		frameTimes := make([]int64, len(frames))
		for i := range frames {
			frameTimes[i] = frames[i].Desc.TimeMS
		}
		offset, err := capture.EstimateClockOffset(poses, frameTimes)
		if err != nil {
			return err
		}
		logger.Infow("reconciling clocks", "offset_ms", offset)
		poses = poses.Shift(-offset)
	}

	conf := capture.SyncConfig{
		WindowMS:       *windowMS,
		ToneMapMethod:  rimage.ToneMapMethod(*toneMap),
		CLAHEClipLimit: *claheClip,
		Gamma:          *gamma,
		NearZ:          *nearZ,
		FarZ:           *farZ,
	}
	if conf.FarZ == 0 {
		conf.FarZ = math.Inf(1)
	}
	synchronizer, err := capture.NewFrameSynchronizer(poses, conf, logger)
	if err != nil {
		return err
	}

	results, err := synchronizer.Sync(ctx, frames)
	if err != nil {
		return err
	}

	manifest, err := writeResults(*outDir, results)
	if err != nil {
		return err
	}

	st := synchronizer.Stats(results)
	logger.Infow("done",
		"total", st.Total,
		"matched", st.Matched,
		"match_rate", fmt.Sprintf("%.3f", st.MatchRate),
		"dropped_no_pose", st.Drops[capture.DropNoPoseWithinWindow],
		"dropped_invalid", st.Drops[capture.DropInvalidDescriptor],
		"median_abs_offset_ms", st.MedianAbsOffsetMS,
		"manifest", manifest,
	)
	return nil
}

// ensureOutputDir creates the output directory after confirming its parent
// already exists. A missing parent almost always means a mistyped path and is
// reported as such instead of silently materializing the whole chain.
func ensureOutputDir(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	parent := filepath.Dir(abs)
	if _, err := os.Stat(parent); err != nil {
		return errors.Wrapf(err, "parent of output directory %q does not exist", abs)
	}
	//nolint:gosec
	return os.MkdirAll(abs, 0o755)
}

// loadPoseCSV reads a pose log with columns timestamp_ms,px,py,pz,qw,qx,qy,qz.
// A non-numeric first row is treated as a header. Rows are stably sorted by
// timestamp; logger files are occasionally concatenated out of order.
func loadPoseCSV(path string) (*capture.PoseStream, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "error reading pose log %q", path)
	}

	poses := make([]capture.TimestampedPose, 0, len(rows))
	for i, row := range rows {
		if len(row) != 8 {
			return nil, errors.Errorf("pose log %q row %d: want 8 columns, got %d", path, i+1, len(row))
		}
		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			if i == 0 {
				continue // header
			}
			return nil, errors.Wrapf(err, "pose log %q row %d", path, i+1)
		}
		var vals [7]float64
		for j := 0; j < 7; j++ {
			if vals[j], err = strconv.ParseFloat(row[j+1], 64); err != nil {
				return nil, errors.Wrapf(err, "pose log %q row %d", path, i+1)
			}
		}
		poses = append(poses, capture.TimestampedPose{
			TimeMS:      ts,
			Position:    r3.Vector{X: vals[0], Y: vals[1], Z: vals[2]},
			Orientation: quat.Number{Real: vals[3], Imag: vals[4], Jmag: vals[5], Kmag: vals[6]},
		})
	}
	sort.SliceStable(poses, func(i, j int) bool { return poses[i].TimeMS < poses[j].TimeMS })
	return capture.NewPoseStream(poses)
}

// loadFrames parses the frame manifest and loads each referenced image and
// depth buffer. Paths in the manifest are relative to the manifest file.
func loadFrames(ctx context.Context, path string) ([]capture.RawFrame, error) {
	//nolint:gosec
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var manifest frameManifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, errors.Wrapf(err, "error parsing frame manifest %q", path)
	}

	baseDir := filepath.Dir(path)
	frames := make([]capture.RawFrame, len(manifest.Frames))
	group, _ := errgroup.WithContext(ctx)
	group.SetLimit(8)
	for i, entry := range manifest.Frames {
		i, entry := i, entry
		group.Go(func() error {
			frame := capture.RawFrame{Desc: entry.FrameDescriptor}
			if entry.ImagePath != "" {
				img, err := imaging.Open(filepath.Join(baseDir, entry.ImagePath))
				if err != nil {
					return errors.Wrapf(err, "frame %dms image", entry.TimeMS)
				}
				frame.Image = img
			}
			if entry.DepthPath != "" {
				dm, err := rimage.ParseDepthMap(filepath.Join(baseDir, entry.DepthPath))
				if err != nil {
					return errors.Wrapf(err, "frame %dms depth", entry.TimeMS)
				}
				if frame.Image != nil && dm.Bounds() != frame.Image.Bounds() {
					return errors.Errorf("frame %dms: depth %v does not match image %v",
						entry.TimeMS, dm.Bounds(), frame.Image.Bounds())
				}
				frame.Depth = dm
			}
			frames[i] = frame
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return frames, nil
}

// writeResults writes each matched sample's image and depth buffer plus a
// manifest of samples and drops. Returns the manifest path.
func writeResults(outDir string, results []capture.FrameResult) (string, error) {
	manifest := resultManifest{
		Samples: []sampleRecord{},
		Drops:   []dropRecord{},
	}
	for _, res := range results {
		if !res.Matched() {
			manifest.Drops = append(manifest.Drops, dropRecord{
				TimestampMS: res.FrameTimeMS,
				Reason:      res.Drop.String(),
			})
			continue
		}
		sample := res.Sample
		rec := sampleRecord{
			TimestampMS: sample.FrameTimeMS,
			Position:    [3]float64{sample.Pose.Point.X, sample.Pose.Point.Y, sample.Pose.Point.Z},
			Orientation: [4]float64{
				sample.Pose.Orientation.Real,
				sample.Pose.Orientation.Imag,
				sample.Pose.Orientation.Jmag,
				sample.Pose.Orientation.Kmag,
			},
			Intrinsics: sample.Intrinsics,
		}
		if sample.Image != nil {
			rec.ImagePath = fmt.Sprintf("frame_%d.png", sample.FrameTimeMS)
			if err := imaging.Save(sample.Image, filepath.Join(outDir, rec.ImagePath)); err != nil {
				return "", errors.Wrapf(err, "frame %dms image", sample.FrameTimeMS)
			}
		}
		if sample.Depth != nil {
			rec.DepthPath = fmt.Sprintf("depth_%d.vnd.viam.dep", sample.FrameTimeMS)
			if err := sample.Depth.WriteToFile(filepath.Join(outDir, rec.DepthPath)); err != nil {
				return "", errors.Wrapf(err, "frame %dms depth", sample.FrameTimeMS)
			}
		}
		manifest.Samples = append(manifest.Samples, rec)
	}

	out, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", err
	}
	manifestPath := filepath.Join(outDir, "samples.json")
	//nolint:gosec
	if err := os.WriteFile(manifestPath, out, 0o644); err != nil {
		return "", err
	}
	return manifestPath, nil
}
