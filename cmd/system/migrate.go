package system

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/studiolegale/sld_backend/config"
	"github.com/studiolegale/sld_backend/internal/store"
	"github.com/studiolegale/sld_backend/pkg/database"
)

func NewMigrateCommand() *cobra.Command {
	var seedHolidays bool
	var holidayYears int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, err := cmd.Root().PersistentFlags().GetString("config")
			if err != nil {
				return fmt.Errorf("failed to get config flag: %w", err)
			}
			cfg, err := config.ReadConfig(filepath.Dir(cfgPath))
			if err != nil {
				return fmt.Errorf("failed to read config: %w", err)
			}

			fmt.Println("Running migrations.")
			db, err := database.Open(cfg.Database)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer db.Close()

			timeout := time.Duration(cfg.Server.TimeoutSeconds) * time.Second
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			if err := store.Migrate(ctx, db); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			if seedHolidays {
				fmt.Printf("Seeding Italian public holidays for %d years.\n", holidayYears)
				st := store.NewPostgresStore(db)
				year := time.Now().Year()
				for y := year; y < year+holidayYears; y++ {
					for _, h := range italianHolidays(y) {
						if err := st.UpsertBlockedDate(ctx, h); err != nil {
							return fmt.Errorf("failed to seed holiday %s: %w", h.Date.Format("2006-01-02"), err)
						}
					}
				}
			}

			fmt.Println("Migrations executed successfully.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&seedHolidays, "seed-holidays", false, "Seed Italian public holidays as blocked dates")
	cmd.Flags().IntVar(&holidayYears, "holiday-years", 2, "How many years of holidays to seed")

	return cmd
}

// italianHolidays returns the national public holidays for a year: the fixed
// dates plus Easter Monday.
func italianHolidays(year int) []store.BlockedDate {
	fixed := []struct {
		month time.Month
		day   int
		name  string
	}{
		{time.January, 1, "Capodanno"},
		{time.January, 6, "Epifania"},
		{time.April, 25, "Festa della Liberazione"},
		{time.May, 1, "Festa dei Lavoratori"},
		{time.June, 2, "Festa della Repubblica"},
		{time.August, 15, "Ferragosto"},
		{time.November, 1, "Ognissanti"},
		{time.December, 8, "Immacolata Concezione"},
		{time.December, 25, "Natale"},
		{time.December, 26, "Santo Stefano"},
	}

	out := make([]store.BlockedDate, 0, len(fixed)+1)
	for _, f := range fixed {
		out = append(out, store.BlockedDate{
			Date:   time.Date(year, f.month, f.day, 0, 0, 0, 0, time.UTC),
			Reason: f.name,
		})
	}
	out = append(out, store.BlockedDate{
		Date:   easter(year).AddDate(0, 0, 1),
		Reason: "Lunedì dell'Angelo",
	})
	return out
}

// easter computes Easter Sunday using Gauss's algorithm.
func easter(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
