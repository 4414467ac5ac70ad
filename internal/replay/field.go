package replay

// Field image size the positions are scaled to.
const (
	FieldWidth  = 512
	FieldHeight = 288
)

// Source coordinates were measured on an 800x400 drawing.
const (
	srcWidth  = 800
	srcHeight = 400
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func scaled(x, y float64) Point {
	return Point{X: x * FieldWidth / srcWidth, Y: y * FieldHeight / srcHeight}
}

// FieldPositions maps the names scouts record in autoPath to field points.
var FieldPositions = map[string]Point{
	"A": scaled(278, 115),
	"B": scaled(278, 160),
	"C": scaled(285, 200),
	"D": scaled(330, 220),
	"E": scaled(375, 220),
	"F": scaled(420, 200),
	"G": scaled(430, 160),
	"H": scaled(430, 115),
	"I": scaled(420, 70),
	"J": scaled(375, 50),
	"K": scaled(330, 50),
	"L": scaled(285, 70),

	"processor": scaled(390, 265),
	"groundA":   scaled(175, 85),
	"groundB":   scaled(175, 150),
	"groundC":   scaled(175, 220),
	"sourceA":   scaled(88, 90),
	"sourceB":   scaled(88, 232),
}
