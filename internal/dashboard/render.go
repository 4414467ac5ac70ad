package dashboard

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
)

const header = "\tTeam\tAuto\tTeleop\tCoral\tAlgae\tClimb\tTotal\tDefense"

// Render writes one row per team, red alliance first.
func Render(w io.Writer, resp Response) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	for i, team := range resp.RedTeams {
		writeRow(tw, fmt.Sprintf("Red %d", i+1), team, resp.Red[team])
	}
	for i, team := range resp.BlueTeams {
		writeRow(tw, fmt.Sprintf("Blue %d", i+1), team, resp.Blue[team])
	}
	return tw.Flush()
}

func RenderRankings(w io.Writer, avgs map[int]Averages, teams []int) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	for i, team := range teams {
		writeRow(tw, strconv.Itoa(i+1), team, avgs[team])
	}
	return tw.Flush()
}

func writeRow(w io.Writer, label string, team int, a Averages) {
	fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
		label, team,
		num(a.Auto), num(a.TeleopTotal), num(a.TeleopCoral), num(a.TeleopAlgae),
		num(a.Climb), num(a.Total), num(a.Defense))
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
