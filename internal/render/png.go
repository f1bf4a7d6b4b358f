package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	imagedraw "image/draw"
	"image/png"
	"strings"

	nchess "github.com/corentings/chess/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
)

const (
	squareSize   = 64
	boardSize    = squareSize * 8
	sideMargin   = 28
	topMargin    = 76
	bottomMargin = 28
	panelHeight  = 30
	panelRadius  = 10
	panelPadX    = 18
	gapToBoard   = 14
)

var (
	backgroundColor     = color.RGBA{22, 24, 34, 255}
	lightSquare         = color.RGBA{233, 207, 163, 255}
	darkSquare          = color.RGBA{187, 136, 96, 255}
	whiteMoveFill       = color.NRGBA{R: 255, G: 228, B: 120, A: 140}
	blackMoveArrow      = color.NRGBA{R: 148, G: 207, B: 255, A: 170}
	neutralMoveArrow    = color.NRGBA{R: 182, G: 184, B: 190, A: 140}
	selectedFill        = color.NRGBA{R: 96, G: 200, B: 120, A: 120}
	hudPanelColor       = color.NRGBA{R: 40, G: 44, B: 64, A: 250}
	hudTurnPanelColor   = color.NRGBA{R: 48, G: 52, B: 74, A: 245}
	hudTextPrimary      = color.NRGBA{R: 236, G: 239, B: 255, A: 255}
	hudTurnTextColor    = color.NRGBA{R: 204, G: 210, B: 236, A: 255}
	boardShadowColor    = color.NRGBA{0, 0, 0, 60}
	coordinateTextColor = color.NRGBA{R: 8, G: 214, B: 120, A: 255}
)

// PNG draws fen as a PNG image.
func PNG(ctx context.Context, fen string, opts Options) ([]byte, error) {
	board, err := boardOf(fen)
	if err != nil {
		return nil, err
	}

	origin := image.Point{X: sideMargin, Y: topMargin}
	boardRect := image.Rect(origin.X, origin.Y, origin.X+boardSize, origin.Y+boardSize)
	img := image.NewRGBA(image.Rect(0, 0, boardSize+sideMargin*2, boardSize+topMargin+bottomMargin))
	imagedraw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, imagedraw.Src)

	drawHUD(img, opts, boardRect)
	drawBoardShadow(img, boardRect)
	drawSquares(img, origin)
	if sq, ok := optSquare(opts.Selected); ok {
		drawSquareOverlay(img, sq, origin, opts.Flip, selectedFill)
	}
	if err := drawPieces(ctx, img, board, origin, opts.Flip); err != nil {
		return nil, err
	}
	drawHighlight(img, board, opts, origin)
	drawCoordinates(img, origin, opts.Flip)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func drawBoardShadow(img *image.RGBA, boardRect image.Rectangle) {
	shadow := image.Rect(boardRect.Min.X+4, boardRect.Min.Y+8, boardRect.Max.X+10, boardRect.Max.Y+12)
	imagedraw.Draw(img, shadow, image.NewUniform(boardShadowColor), image.Point{}, imagedraw.Over)
}

func drawSquares(dst imagedraw.Image, origin image.Point) {
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			x := origin.X + col*squareSize
			y := origin.Y + row*squareSize
			// 뒤집어도 a1은 항상 어두운 칸
			clr := color.Color(lightSquare)
			if (row+col)%2 == 1 {
				clr = darkSquare
			}
			imagedraw.Draw(dst, image.Rect(x, y, x+squareSize, y+squareSize), image.NewUniform(clr), image.Point{}, imagedraw.Src)
		}
	}
}

func drawPieces(ctx context.Context, dst imagedraw.Image, board *nchess.Board, origin image.Point, flip bool) error {
	for sq, piece := range board.SquareMap() {
		if piece == nchess.NoPiece {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		pimg, err := renderPieceImage(piece, squareSize)
		if err != nil {
			return err
		}
		imagedraw.Draw(dst, squareRect(sq, origin, flip), pimg, image.Point{}, imagedraw.Over)
	}
	return nil
}

// drawHighlight fills the squares of a white move and draws an arrow for a black one.
func drawHighlight(img *image.RGBA, board *nchess.Board, opts Options, origin image.Point) {
	from, okFrom := optSquare(opts.LastFrom)
	to, okTo := optSquare(opts.LastTo)
	if !okFrom || !okTo {
		return
	}
	mover := nchess.NoColor
	if p := board.Piece(to); p != nchess.NoPiece {
		mover = p.Color()
	} else if p := board.Piece(from); p != nchess.NoPiece {
		mover = p.Color()
	}
	switch mover {
	case nchess.White:
		drawSquareOverlay(img, from, origin, opts.Flip, whiteMoveFill)
		drawSquareOverlay(img, to, origin, opts.Flip, whiteMoveFill)
	case nchess.Black:
		drawArrow(img, squareRect(from, origin, opts.Flip), squareRect(to, origin, opts.Flip), blackMoveArrow)
	default:
		drawArrow(img, squareRect(from, origin, opts.Flip), squareRect(to, origin, opts.Flip), neutralMoveArrow)
	}
}

func drawSquareOverlay(img *image.RGBA, sq nchess.Square, origin image.Point, flip bool, clr color.Color) {
	imagedraw.Draw(img, squareRect(sq, origin, flip), image.NewUniform(clr), image.Point{}, imagedraw.Over)
}

func drawHUD(img *image.RGBA, opts Options, boardRect image.Rectangle) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: img, Face: face}

	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = "Chess room"
	}
	turn := strings.TrimSpace(opts.Turn)

	bottom := boardRect.Min.Y - gapToBoard
	top := bottom - panelHeight

	turnWidth := 0
	if turn != "" {
		turnWidth = drawer.MeasureString(turn).Round() + panelPadX*2
	}
	titleWidth := drawer.MeasureString(title).Round() + panelPadX*2
	if maxTitle := boardRect.Dx() - turnWidth - 16; titleWidth > maxTitle {
		titleWidth = maxTitle
	}

	titleRect := image.Rect(boardRect.Min.X, top, boardRect.Min.X+titleWidth, bottom)
	drawRoundedPanel(img, titleRect, panelRadius, hudPanelColor)
	drawCenteredString(drawer, titleRect, truncateWithEllipsis(face, title, titleRect.Dx()-panelPadX*2), hudTextPrimary)

	if turn != "" {
		turnRect := image.Rect(boardRect.Max.X-turnWidth, top, boardRect.Max.X, bottom)
		drawRoundedPanel(img, turnRect, panelRadius, hudTurnPanelColor)
		drawCenteredString(drawer, turnRect, turn, hudTurnTextColor)
	}
}

func drawCoordinates(dst imagedraw.Image, origin image.Point, flip bool) {
	face := basicfont.Face7x13
	drawer := &font.Drawer{Dst: dst, Face: face, Src: image.NewUniform(coordinateTextColor)}
	ascent := face.Metrics().Ascent.Ceil()
	boardEndY := origin.Y + boardSize

	for i := 0; i < 8; i++ {
		sq := squareAt(0, i, flip)
		drawCenteredText(drawer, sq.Rank().String(), origin.X-sideMargin/2, origin.Y+i*squareSize+squareSize/2+ascent/2)
		sq = squareAt(i, 7, flip)
		drawCenteredText(drawer, sq.File().String(), origin.X+i*squareSize+squareSize/2, boardEndY+ascent+4)
	}
}

func squareRect(sq nchess.Square, origin image.Point, flip bool) image.Rectangle {
	col, row := cell(sq, flip)
	x := origin.X + col*squareSize
	y := origin.Y + row*squareSize
	return image.Rect(x, y, x+squareSize, y+squareSize)
}
