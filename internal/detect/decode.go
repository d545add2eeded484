package detect

import "image"

// candidate はNMS前の検出候補
type candidate struct {
	box     image.Rectangle
	score   float32
	classID int
}

// decodeOutput はYOLOv8のDNN出力をデコードして候補一覧を返す
// 出力レイアウトは (4 + クラス数) x rows の転置行列で、
// 行jの中心座標・サイズは data[j], data[j+rows], data[j+rows*2], data[j+rows*3]、
// クラスcのスコアは data[j+rows*(4+c)] に格納されている
// 信頼度閾値未満の候補はここで除外する
func decodeOutput(data []float32, rows, numClasses int, confThreshold float32) []candidate {
	var candidates []candidate

	for j := 0; j < rows; j++ {
		x := data[j]
		y := data[j+rows]
		w := data[j+rows*2]
		h := data[j+rows*3]

		bestID := 0
		bestScore := float32(0)
		for c := 0; c < numClasses; c++ {
			score := data[j+rows*(4+c)]
			if score > bestScore {
				bestID = c
				bestScore = score
			}
		}

		if bestScore < confThreshold {
			continue
		}

		candidates = append(candidates, candidate{
			box:     image.Rect(int(x-w/2), int(y-h/2), int(x+w/2), int(y+h/2)),
			score:   bestScore,
			classID: bestID,
		})
	}

	return candidates
}

// scaleBox はモデル入力座標系のボックスを元画像のピクセル座標に変換する
// 元画像の範囲にクランプする
func scaleBox(r image.Rectangle, scaleX, scaleY float64, width, height int) Box {
	box := Box{
		X1: int(float64(r.Min.X) * scaleX),
		Y1: int(float64(r.Min.Y) * scaleY),
		X2: int(float64(r.Max.X) * scaleX),
		Y2: int(float64(r.Max.Y) * scaleY),
	}

	box.X1 = clamp(box.X1, 0, width)
	box.Y1 = clamp(box.Y1, 0, height)
	box.X2 = clamp(box.X2, 0, width)
	box.Y2 = clamp(box.Y2, 0, height)

	return box
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
