package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Angus-Paillaugue/music-player/internal/domain"
	"github.com/Angus-Paillaugue/music-player/pkg/logger"
)

var (
	serverURL   string
	noAutoStart bool
	verbose     bool
	jsonOutput  bool
	client      *apiClient
	rootCmd     = &cobra.Command{
		Use:   "music-player",
		Short: "Music player CLI - acquire playlists and browse the library",
		Long:  `A command-line interface for the music player server: acquire playlists through yt-dlp and list the library.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			client = newAPIClient(serverURL, logger.NewCLI(verbose))
		},
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")

	rootCmd.AddCommand(acquireCmd)
	rootCmd.AddCommand(songsCmd)
	rootCmd.AddCommand(albumsCmd)
	rootCmd.AddCommand(artistsCmd)
	rootCmd.AddCommand(playlistsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(activeCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(rescanCmd)
	rootCmd.AddCommand(logsCmd)

	acquireCmd.Flags().StringP("format", "f", "", "Target format (flac, mp3); server default when empty")
	historyCmd.Flags().StringP("status", "s", "", "Filter by status")
	historyCmd.Flags().StringP("playlist", "p", "", "Filter by playlist id")
	logsCmd.Flags().IntP("limit", "n", 100, "Number of entries")
	logsCmd.Flags().StringP("date", "d", "", "Date (YYYY-MM-DD), today when empty")
	logsCmd.Flags().StringP("search", "q", "", "Only entries containing this text")
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

// printJSON writes v indented when --json is set
func printJSON(v interface{}) bool {
	if !jsonOutput {
		return false
	}
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
	return true
}

var acquireCmd = &cobra.Command{
	Use:   "acquire [playlistId]",
	Short: "Download a playlist into the library",
	Long:  `Downloads a playlist and follows its progress. Ctrl-C stops the download and discards what it fetched.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		format, _ := cmd.Flags().GetString("format")

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		progress := newProgressPrinter(os.Stdout)
		err := client.acquire(ctx, args[0], format, func(ev domain.ProgressEvent) {
			if jsonOutput {
				data, _ := json.Marshal(ev)
				fmt.Println(string(data))
				return
			}
			progress.Print(ev)
		})
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "\nCancelled.")
			return nil
		}
		return err
	},
}

var songsCmd = &cobra.Command{
	Use:   "songs",
	Short: "List songs in the library",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		var songs []domain.Song
		if err := client.getJSON(cmd.Context(), "/api/v1/songs", &songs); err != nil {
			return err
		}
		if printJSON(songs) {
			return nil
		}

		rows := make([][]string, 0, len(songs))
		for _, s := range songs {
			artist := ""
			if s.Artist != nil {
				artist = s.Artist.Name
			}
			album := ""
			if s.Album != nil {
				album = s.Album.Title
			}
			rows = append(rows, []string{s.ID, truncate(s.Title, 40), truncate(artist, 24), truncate(album, 24), formatDuration(s.Duration), string(s.MediaType)})
		}
		fmt.Println(renderTable(os.Stdout, []string{"ID", "TITLE", "ARTIST", "ALBUM", "LENGTH", "FORMAT"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
		return nil
	},
}

var albumsCmd = &cobra.Command{
	Use:   "albums",
	Short: "List albums",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		var albums []domain.Album
		if err := client.getJSON(cmd.Context(), "/api/v1/albums", &albums); err != nil {
			return err
		}
		if printJSON(albums) {
			return nil
		}

		rows := make([][]string, 0, len(albums))
		for _, a := range albums {
			rows = append(rows, []string{strconv.FormatUint(uint64(a.ID), 10), a.Title})
		}
		fmt.Println(renderTable(os.Stdout, []string{"ID", "TITLE"}, rows, []columnAlignment{alignRight, alignLeft}))
		return nil
	},
}

var artistsCmd = &cobra.Command{
	Use:   "artists",
	Short: "List artists",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		var artists []domain.Artist
		if err := client.getJSON(cmd.Context(), "/api/v1/artists", &artists); err != nil {
			return err
		}
		if printJSON(artists) {
			return nil
		}

		rows := make([][]string, 0, len(artists))
		for _, a := range artists {
			rows = append(rows, []string{strconv.FormatUint(uint64(a.ID), 10), a.Name})
		}
		fmt.Println(renderTable(os.Stdout, []string{"ID", "NAME"}, rows, []columnAlignment{alignRight, alignLeft}))
		return nil
	},
}

var playlistsCmd = &cobra.Command{
	Use:   "playlists",
	Short: "List playlists",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		var playlists []domain.Playlist
		if err := client.getJSON(cmd.Context(), "/api/v1/playlists", &playlists); err != nil {
			return err
		}
		if printJSON(playlists) {
			return nil
		}

		rows := make([][]string, 0, len(playlists))
		for _, p := range playlists {
			rows = append(rows, []string{p.ID, truncate(p.Name, 40), strconv.Itoa(len(p.SongIDs))})
		}
		fmt.Println(renderTable(os.Stdout, []string{"ID", "NAME", "SONGS"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past acquisitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		query := url.Values{}
		if status, _ := cmd.Flags().GetString("status"); status != "" {
			query.Set("status", status)
		}
		if playlist, _ := cmd.Flags().GetString("playlist"); playlist != "" {
			query.Set("playlist_id", playlist)
		}

		path := "/api/v1/acquisitions"
		if len(query) > 0 {
			path += "?" + query.Encode()
		}
		var records []domain.Acquisition
		if err := client.getJSON(cmd.Context(), path, &records); err != nil {
			return err
		}
		if printJSON(records) {
			return nil
		}

		rows := make([][]string, 0, len(records))
		for _, r := range records {
			name := r.PlaylistName
			if name == "" {
				name = r.PlaylistID
			}
			rows = append(rows, []string{
				shortID(r.ID),
				truncate(name, 32),
				string(r.Format),
				string(r.Status),
				fmt.Sprintf("%d/%d", r.Current, r.Total),
				strconv.Itoa(r.SongsAdded),
				r.CreatedAt.Local().Format(time.DateTime),
			})
		}
		fmt.Println(renderTable(os.Stdout, []string{"ID", "PLAYLIST", "FORMAT", "STATUS", "ITEMS", "ADDED", "CREATED"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft}))
		return nil
	},
}

// sessionInfo mirrors the server's active session view
type sessionInfo struct {
	ID           string    `json:"id"`
	PlaylistID   string    `json:"playlist_id"`
	Format       string    `json:"format"`
	State        string    `json:"state"`
	PlaylistName string    `json:"playlist_name"`
	Current      int       `json:"current"`
	Total        int       `json:"total"`
	StartedAt    time.Time `json:"started_at"`
}

var activeCmd = &cobra.Command{
	Use:   "active",
	Short: "List running acquisitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		var sessions []sessionInfo
		if err := client.getJSON(cmd.Context(), "/api/v1/acquisitions/active", &sessions); err != nil {
			return err
		}
		if printJSON(sessions) {
			return nil
		}
		if len(sessions) == 0 {
			fmt.Println("No running acquisitions")
			return nil
		}

		rows := make([][]string, 0, len(sessions))
		for _, s := range sessions {
			name := s.PlaylistName
			if name == "" {
				name = s.PlaylistID
			}
			rows = append(rows, []string{
				s.ID,
				truncate(name, 32),
				s.State,
				fmt.Sprintf("%d/%d", s.Current, s.Total),
				time.Since(s.StartedAt).Round(time.Second).String(),
			})
		}
		fmt.Println(renderTable(os.Stdout, []string{"ID", "PLAYLIST", "STATE", "ITEMS", "RUNNING"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight}))
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show acquisition statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		var stats domain.AcquisitionStats
		if err := client.getJSON(cmd.Context(), "/api/v1/acquisitions/stats", &stats); err != nil {
			return err
		}
		if printJSON(stats) {
			return nil
		}

		fmt.Println("Acquisition Statistics:")
		fmt.Printf("  Total:       %d\n", stats.Total)
		fmt.Printf("  Running:     %d\n", stats.Running)
		fmt.Printf("  Completed:   %d\n", stats.Completed)
		fmt.Printf("  Cancelled:   %d\n", stats.Cancelled)
		fmt.Printf("  Failed:      %d\n", stats.Failed)
		fmt.Printf("  Songs added: %d\n", stats.SongsAdded)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a running acquisition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		if err := client.postJSON(cmd.Context(), "/api/v1/acquisitions/"+url.PathEscape(args[0])+"/cancel", nil); err != nil {
			return err
		}
		fmt.Println("Acquisition cancelled")
		return nil
	},
}

// rescanResult mirrors the server's rescan response
type rescanResult struct {
	Scanned int `json:"scanned"`
	Added   int `json:"added"`
	Covers  int `json:"covers"`
	Errors  int `json:"errors"`
}

var rescanCmd = &cobra.Command{
	Use:   "rescan",
	Short: "Register media files added to the library by hand",
	RunE: func(cmd *cobra.Command, args []string) error {
		ensureServer()
		var result rescanResult
		if err := client.postJSON(cmd.Context(), "/api/v1/library/rescan", &result); err != nil {
			return err
		}
		if printJSON(result) {
			return nil
		}
		fmt.Printf("Scanned %d file(s): %d added, %d cover(s) extracted, %d error(s)\n",
			result.Scanned, result.Added, result.Covers, result.Errors)
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:       "logs [category]",
	Short:     "View server logs (acquisition, error, process)",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(logger.CategoryAcquisition), string(logger.CategoryError), string(logger.CategoryProcess)},
	RunE: func(cmd *cobra.Command, args []string) error {
		category, ok := logger.ParseCategory(args[0])
		if !ok {
			return fmt.Errorf("unknown log category %q", args[0])
		}
		ensureServer()

		limit, _ := cmd.Flags().GetInt("limit")
		date, _ := cmd.Flags().GetString("date")
		search, _ := cmd.Flags().GetString("search")

		query := url.Values{}
		query.Set("limit", strconv.Itoa(limit))
		if date != "" {
			query.Set("date", date)
		}
		path := "/api/v1/logs/" + string(category)
		if search != "" {
			path += "/search"
			query.Set("q", search)
		}

		var result struct {
			Entries []logger.LogEntry `json:"entries"`
		}
		if err := client.getJSON(cmd.Context(), path+"?"+query.Encode(), &result); err != nil {
			return err
		}
		if printJSON(result.Entries) {
			return nil
		}

		for _, e := range result.Entries {
			if e.Timestamp == "" {
				fmt.Println(e.Message)
				continue
			}
			fmt.Printf("%s %-5s %s%s\n", e.Timestamp, e.Level, e.Message, formatFields(e.Fields))
		}
		return nil
	},
}

func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return ""
	}
	return " " + string(data)
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "-"
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, errIncompleteStream) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
