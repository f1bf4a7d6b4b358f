package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	nchess "github.com/corentings/chess/v2"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// Piece outlines on a 45x45 canvas. Every piece shares the same plinth.
const plinth = `<rect x="10" y="35" width="25" height="4.5" rx="1"/>`

var pieceShapes = map[nchess.PieceType]string{
	nchess.Pawn: `<circle cx="22.5" cy="14" r="5.5"/>` +
		`<path d="M 15 35 L 30 35 L 27 22 Q 22.5 18 18 22 Z"/>`,
	nchess.Knight: `<path d="M 13 35 L 33 35 L 31 21 Q 29 9 19.5 9 L 17 12 L 11 20 L 12.5 24 L 19 21.5 L 14.5 33 Z"/>` +
		`<circle cx="20" cy="14.5" r="1.2"/>`,
	nchess.Bishop: `<circle cx="22.5" cy="8" r="2.8"/>` +
		`<path d="M 15 35 L 30 35 L 28 22 Q 22.5 8 17 22 Z"/>`,
	nchess.Rook: `<path d="M 11 15 L 11 9 L 15 9 L 15 12 L 20 12 L 20 9 L 25 9 L 25 12 L 30 12 L 30 9 L 34 9 L 34 15 Z"/>` +
		`<rect x="14" y="15" width="17" height="20"/>`,
	nchess.Queen: `<path d="M 11 35 L 34 35 L 37 13 L 29 25 L 22.5 10 L 16 25 L 8 13 Z"/>` +
		`<circle cx="8" cy="12" r="2.2"/><circle cx="22.5" cy="9" r="2.2"/><circle cx="37" cy="12" r="2.2"/>`,
	nchess.King: `<rect x="21" y="3" width="3" height="11"/><rect x="17.5" y="6" width="10" height="3"/>` +
		`<path d="M 12 35 L 33 35 L 32 23 Q 22.5 11 13 23 Z"/>`,
}

func pieceSVG(p nchess.Piece) ([]byte, error) {
	shape, ok := pieceShapes[p.Type()]
	if !ok {
		return nil, fmt.Errorf("no outline for piece type %v", p.Type())
	}
	fill, stroke := "#f8f8f8", "#1b1b1b"
	if p.Color() == nchess.Black {
		fill, stroke = "#1b1b1b", "#f0f0f0"
	}
	return []byte(fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 45 45" width="45" height="45">`+
			`<g fill="%s" stroke="%s" stroke-width="1.5" stroke-linejoin="round">%s%s</g></svg>`,
		fill, stroke, shape, plinth,
	)), nil
}

type pieceCacheKey struct {
	piece nchess.Piece
	size  int
}

var (
	pieceCache   = map[pieceCacheKey]image.Image{}
	pieceCacheMu sync.RWMutex
)

func renderPieceImage(piece nchess.Piece, size int) (image.Image, error) {
	key := pieceCacheKey{piece: piece, size: size}

	pieceCacheMu.RLock()
	if img, ok := pieceCache[key]; ok {
		pieceCacheMu.RUnlock()
		return img, nil
	}
	pieceCacheMu.RUnlock()

	data, err := pieceSVG(piece)
	if err != nil {
		return nil, err
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse piece svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(size), float64(size))

	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Transparent), image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(size, size, img, img.Bounds())
	raster := rasterx.NewDasher(size, size, scanner)
	icon.Draw(raster, 1.0)

	pieceCacheMu.Lock()
	pieceCache[key] = img
	pieceCacheMu.Unlock()

	return img, nil
}
