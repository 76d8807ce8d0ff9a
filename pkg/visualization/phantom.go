package visualization

import "math"

// NewPhantom builds a synthetic head: an ellipsoidal brain whose intensity
// falls off from the centre, and a lesion mask holding one spherical lesion
// in the right upper quadrant. Both share shape and spacing.
func NewPhantom(shape [3]int, spacing [3]float64) (brain, lesion *Viewer) {
	w, h, d := shape[0], shape[1], shape[2]
	brainData := make([]float64, w*h*d)
	lesionData := make([]float64, w*h*d)

	cx, cy, cz := float64(w)/2, float64(h)/2, float64(d)/2
	rx, ry, rz := 0.4*float64(w), 0.45*float64(h), 0.4*float64(d)

	lx, ly, lz := cx+0.15*float64(w), cy-0.1*float64(h), cz+0.1*float64(d)
	lr := math.Max(1, 0.08*math.Min(float64(w), math.Min(float64(h), float64(d))))

	for z := 0; z < d; z++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				px, py, pz := float64(x)+0.5, float64(y)+0.5, float64(z)+0.5
				ex, ey, ez := (px-cx)/rx, (py-cy)/ry, (pz-cz)/rz
				r := math.Sqrt(ex*ex + ey*ey + ez*ez)
				if r > 1 {
					continue
				}
				idx := z*w*h + y*w + x
				brainData[idx] = 40 + 60*(1-r)

				dx, dy, dz := px-lx, py-ly, pz-lz
				if math.Sqrt(dx*dx+dy*dy+dz*dz) <= lr {
					lesionData[idx] = 1
					brainData[idx] = 140
				}
			}
		}
	}

	return NewViewer(brainData, w, h, d, spacing), NewViewer(lesionData, w, h, d, spacing)
}
