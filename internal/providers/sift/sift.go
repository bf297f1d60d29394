// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sift counts geometrically consistent keypoint matches between two
// images: SIFT features, a nearest-neighbour ratio test and a RANSAC
// homography.
package sift

import (
	"context"
	"fmt"
	"sort"

	"gocv.io/x/gocv"

	"github.com/pdiddy/geolocate/pkg/types"
)

// minHomographyMatches is the fewest correspondences a homography needs.
const minHomographyMatches = 4

// Matcher implements the geometric matcher. It holds no OpenCV state between
// calls and is safe for concurrent use.
type Matcher struct {
	cfg types.MatcherConfig
}

// New creates a Matcher.
func New(cfg types.MatcherConfig) (*Matcher, error) {
	if !(cfg.Ratio > 0 && cfg.Ratio < 1) {
		return nil, fmt.Errorf("%w: ratio test threshold must be in (0,1), got %v", types.ErrInvalidConfig, cfg.Ratio)
	}
	if !(cfg.ReprojectionThreshold > 0) {
		return nil, fmt.Errorf("%w: reprojection threshold must be positive", types.ErrInvalidConfig)
	}
	return &Matcher{cfg: cfg}, nil
}

// Match returns the number of RANSAC inliers between a and b.
func (m *Matcher) Match(ctx context.Context, a, b types.Image) (int, error) {
	grayA, err := decodeGray(a)
	if err != nil {
		return 0, err
	}
	defer grayA.Close()
	grayB, err := decodeGray(b)
	if err != nil {
		return 0, err
	}
	defer grayB.Close()

	sift := gocv.NewSIFT()
	defer sift.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	kpA, descA := sift.DetectAndCompute(grayA, mask)
	defer descA.Close()
	kpB, descB := sift.DetectAndCompute(grayB, mask)
	defer descB.Close()
	if len(kpA) < minHomographyMatches || len(kpB) < minHomographyMatches || descA.Empty() || descB.Empty() {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	bf := gocv.NewBFMatcher()
	defer bf.Close()
	knn := bf.KnnMatch(descA, descB, 2)

	good := RatioTest(toPairs(knn), m.cfg.Ratio,
		Strongest(responses(kpA), m.cfg.Features), Strongest(responses(kpB), m.cfg.Features))
	if len(good) < minHomographyMatches {
		return 0, nil
	}
	return m.inliers(kpA, kpB, good), nil
}

// inliers fits a RANSAC homography to the matches and counts its inliers.
func (m *Matcher) inliers(kpA, kpB []gocv.KeyPoint, good []Pair) int {
	src := gocv.NewMatWithSize(len(good), 1, gocv.MatTypeCV64FC2)
	defer src.Close()
	dst := gocv.NewMatWithSize(len(good), 1, gocv.MatTypeCV64FC2)
	defer dst.Close()
	for i, p := range good {
		src.SetDoubleAt(i, 0, kpA[p.Query].X)
		src.SetDoubleAt(i, 1, kpA[p.Query].Y)
		dst.SetDoubleAt(i, 0, kpB[p.Train].X)
		dst.SetDoubleAt(i, 1, kpB[p.Train].Y)
	}

	inlierMask := gocv.NewMat()
	defer inlierMask.Close()
	h := gocv.FindHomography(src, &dst, gocv.HomographyMethodRANSAC, m.cfg.ReprojectionThreshold, &inlierMask, 2000, 0.995)
	defer h.Close()
	if h.Empty() || inlierMask.Empty() {
		return 0
	}
	return gocv.CountNonZero(inlierMask)
}

func decodeGray(img types.Image) (gocv.Mat, error) {
	mat, err := gocv.IMDecode(img.Data, gocv.IMReadGrayScale)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: decoding image %.12s: %v", types.ErrProviderFailure, img.ID, err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.Mat{}, fmt.Errorf("%w: image %.12s decoded empty", types.ErrProviderFailure, img.ID)
	}
	return mat, nil
}

func responses(kps []gocv.KeyPoint) []float64 {
	out := make([]float64, len(kps))
	for i, kp := range kps {
		out[i] = kp.Response
	}
	return out
}

func toPairs(knn [][]gocv.DMatch) [][]Pair {
	out := make([][]Pair, len(knn))
	for i, ms := range knn {
		for _, dm := range ms {
			out[i] = append(out[i], Pair{Query: dm.QueryIdx, Train: dm.TrainIdx, Distance: dm.Distance})
		}
	}
	return out
}

// Pair is one descriptor correspondence.
type Pair struct {
	Query    int
	Train    int
	Distance float64
}

// Strongest marks the n keypoints with the highest response. n <= 0 keeps
// every keypoint. Ties keep the earlier keypoint.
func Strongest(responses []float64, n int) []bool {
	keep := make([]bool, len(responses))
	if n <= 0 || n >= len(responses) {
		for i := range keep {
			keep[i] = true
		}
		return keep
	}
	idx := make([]int, len(responses))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return responses[idx[i]] > responses[idx[j]] })
	for _, i := range idx[:n] {
		keep[i] = true
	}
	return keep
}

// RatioTest keeps the best neighbour of each query when it is clearly closer
// than the second best (distance < ratio * second) and both endpoints are
// kept keypoints.
func RatioTest(knn [][]Pair, ratio float64, keepQuery, keepTrain []bool) []Pair {
	var good []Pair
	for _, ms := range knn {
		if len(ms) < 2 {
			continue
		}
		best, second := ms[0], ms[1]
		if !(best.Distance < ratio*second.Distance) {
			continue
		}
		if !inRange(keepQuery, best.Query) || !inRange(keepTrain, best.Train) {
			continue
		}
		good = append(good, best)
	}
	return good
}

func inRange(keep []bool, i int) bool {
	return i >= 0 && i < len(keep) && keep[i]
}
