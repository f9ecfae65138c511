package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"time"

	"github.com/airbusgeo/godal"
	"github.com/common-nighthawk/go-figure"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/clearsat/atmcorr/internal/catalog"
	"github.com/clearsat/atmcorr/internal/download"
	"github.com/clearsat/atmcorr/internal/logging"
	"github.com/clearsat/atmcorr/internal/notification"
	"github.com/clearsat/atmcorr/internal/pipeline"
	"github.com/clearsat/atmcorr/internal/sensor"
	"github.com/clearsat/atmcorr/internal/sixs"
)

var (
	sensorName      string
	productNames    []string
	outDir          string
	scratchDir      string
	demPath         string
	aotPath         string
	aotValue        float64
	visibility      float64
	minAOT          float64
	maxAOT          float64
	lowAOT          float64
	upAOT           float64
	aerosolName     string
	atmosphereName  string
	groundName      string
	surfaceAltitude float64
	cloudMethod     string
	cloudMaskPath   string
	localDOS        bool
	simpleDOS       bool
	dosOutRefl      float64
	quicklooks      bool
	keepTmp         bool

	wrsPath      int
	wrsRow       int
	spacecraft   string
	instrument   string
	collection   string
	maxCloud     float64
	startDate    string
	endDate      string
	sceneLimit   int
	manifestPath string

	manifest  string
	downDir   string
	failList  string
	overwrite bool
	multi     bool
	workers   int
)

var rootCmd = &cobra.Command{
	Use:     "atmcorr",
	Short:   "atmospheric correction for Landsat and RapidEye scenes",
	Version: pipeline.Version,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,

	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is fine, the environment may be set directly.
		_ = godotenv.Load()
		logging.Setup()
		godal.RegisterAll()
	},
}

func printBanner() {
	banner := figure.NewFigure("atmcorr", "isometric1", true)
	color.Cyan(banner.String())
	fmt.Println()
}

var runCmd = &cobra.Command{
	Use:   "run <header>",
	Short: "process one scene to the requested products",
	Long: `Process one scene from its provider header to the requested products.

Products: RAD, SATURATE, THERMAL, TOA, CLOUDS, DOS, DOSAOTSGL, DDVAOT,
DOSAOT, SREF, METADATA, FOOTPRINT. Derived products pull in the stages
they need, so requesting SREF alone is enough.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		printBanner()

		id, err := sensor.FromName(sensorName)
		if err != nil {
			return fmt.Errorf("%w, choose from %s", err, strings.Join(sensor.Names(), ", "))
		}
		products, err := pipeline.ParseProducts(productNames)
		if err != nil {
			return err
		}
		aerosol, err := sixs.ParseAerosolProfile(aerosolName)
		if err != nil {
			return err
		}
		atmosphere, err := sixs.ParseAtmosphereProfile(atmosphereName)
		if err != nil {
			return err
		}
		ground, err := sixs.ParseGroundReflectance(groundName)
		if err != nil {
			return err
		}

		result, err := pipeline.New().Run(cmd.Context(), pipeline.Options{
			Sensor:            id,
			HeaderPath:        args[0],
			OutDir:            outDir,
			ScratchDir:        scratchDir,
			Products:          products,
			DEMPath:           demPath,
			AOTPath:           aotPath,
			AOT:               aotValue,
			Visibility:        visibility,
			MinAOT:            minAOT,
			MaxAOT:            maxAOT,
			LowAOT:            lowAOT,
			UpAOT:             upAOT,
			Aerosol:           aerosol,
			Atmosphere:        atmosphere,
			Ground:            ground,
			SurfaceAltitude:   surfaceAltitude,
			CloudMethod:       cloudMethod,
			CloudMaskPath:     cloudMaskPath,
			DOSLocal:          localDOS,
			DOSSimple:         simpleDOS,
			DOSOutRefl:        dosOutRefl,
			Quicklook:         quicklooks,
			KeepIntermediates: keepTmp,
		})
		if err != nil {
			notifyError(fmt.Sprintf("atmcorr\n\nScene run failed: %s\n\nHeader: %s", err, args[0]))
			return err
		}

		color.Green("Scene %s complete, %d files written to %s", result.BaseName, len(result.Files), outDir)
		if len(result.Skipped) > 0 {
			color.Yellow("Skipped for cloud cover: %v", result.Skipped)
		}
		notifySuccess(fmt.Sprintf("atmcorr\n\nScene %s processed successfully!\n\nOutput directory: %s", result.BaseName, outDir))
		return nil
	},
}

var scenesCmd = &cobra.Command{
	Use:   "scenes",
	Short: "query the scene index and write a download manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := catalog.Filter{
			Path:       wrsPath,
			Row:        wrsRow,
			Spacecraft: spacecraft,
			Sensor:     instrument,
			Collection: collection,
			MaxCloud:   maxCloud,
			Limit:      sceneLimit,
		}
		if startDate != "" {
			day, err := time.Parse("2006-01-02", startDate)
			if err != nil {
				return fmt.Errorf("invalid start date %q, want YYYY-MM-DD", startDate)
			}
			filter.Start = day
		}
		if endDate != "" {
			day, err := time.Parse("2006-01-02", endDate)
			if err != nil {
				return fmt.Errorf("invalid end date %q, want YYYY-MM-DD", endDate)
			}
			filter.End = day
		}

		scenes, err := catalog.NewClient().Fetch(cmd.Context())
		if err != nil {
			return err
		}
		selected := catalog.Select(scenes, filter)
		if len(selected) == 0 {
			color.Yellow("No scenes matched.")
			return nil
		}

		for _, s := range selected {
			fmt.Printf("%-22s %s %5.1f%%  %s\n", s.SceneID, s.DateAcquired, s.CloudCover, s.BaseURL)
		}
		if manifestPath != "" {
			if err := catalog.WriteManifest(manifestPath, selected); err != nil {
				return err
			}
			color.Green("Wrote %d scenes to %s", len(selected), manifestPath)
		}
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "fetch every scene in a manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		d := download.New(download.NewGsutilCopier(multi))
		failed, err := d.Run(cmd.Context(), download.Options{
			Manifest:  manifest,
			OutDir:    downDir,
			FailList:  failList,
			Overwrite: overwrite,
			Workers:   workers,
		})
		if err != nil {
			return err
		}

		if len(failed) > 0 {
			color.Yellow("%d downloads failed:", len(failed))
			for _, remote := range failed {
				fmt.Println("  " + remote)
			}
			return nil
		}
		color.Green("All downloads complete.")
		return nil
	},
}

var sensorsCmd = &cobra.Command{
	Use:   "sensors",
	Short: "list the supported sensors",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range sensor.Names() {
			fmt.Println(name)
		}
	},
}

func notifyError(message string) {
	if err := notification.SendDiscordErrorNotification(message); err != nil {
		fmt.Fprintf(os.Stderr, "failed to send notification: %s\n", err)
	}
}

func notifySuccess(message string) {
	if err := notification.SendDiscordSuccessNotification(message); err != nil {
		fmt.Fprintf(os.Stderr, "failed to send notification: %s\n", err)
	}
}

func init() {
	rootCmd.AddCommand(runCmd, scenesCmd, downloadCmd, sensorsCmd)

	runCmd.Flags().StringVarP(&sensorName, "sensor", "s", "", "sensor name, one of "+strings.Join(sensor.Names(), ", "))
	runCmd.MarkFlagRequired("sensor")
	runCmd.Flags().StringSliceVarP(&productNames, "products", "p", nil, "products to generate, e.g. RAD,TOA,SREF")
	runCmd.MarkFlagRequired("products")
	runCmd.Flags().StringVarP(&outDir, "output", "o", "", "output directory")
	runCmd.MarkFlagRequired("output")
	runCmd.Flags().StringVar(&scratchDir, "tmpath", "", "scratch directory for intermediates")
	runCmd.Flags().StringVar(&demPath, "dem", "", "elevation model, resampled onto the scene grid")
	runCmd.Flags().StringVar(&aotPath, "aotfile", "", "precomputed aerosol surface for SREF")
	runCmd.Flags().Float64Var(&aotValue, "aot", 0, "fixed aerosol depth for SREF")
	runCmd.Flags().Float64Var(&visibility, "vis", 0, "visibility in km, converted to an aerosol depth")
	runCmd.Flags().Float64Var(&minAOT, "minaot", 0.05, "aerosol search floor")
	runCmd.Flags().Float64Var(&maxAOT, "maxaot", 0.5, "aerosol search ceiling")
	runCmd.Flags().Float64Var(&lowAOT, "lowaot", 0.1, "range below a single aerosol estimate")
	runCmd.Flags().Float64Var(&upAOT, "upaot", 0.4, "range above a single aerosol estimate")
	runCmd.Flags().StringVar(&aerosolName, "aeropro", string(sixs.AerosolContinental), "aerosol profile")
	runCmd.Flags().StringVar(&atmosphereName, "atmospro", string(sixs.AtmosphereMidlatSummer), "atmospheric profile")
	runCmd.Flags().StringVar(&groundName, "grdrefl", string(sixs.GroundGreenVegetation), "ground reflectance surface")
	runCmd.Flags().Float64Var(&surfaceAltitude, "surfacealtitude", 0, "scene altitude in metres when no elevation model is given")
	runCmd.Flags().StringVar(&cloudMethod, "cloudmethod", pipeline.CloudMethodFMask, "cloud masking method, FMASK or LSMSK")
	runCmd.Flags().StringVar(&cloudMaskPath, "cloudmask", "", "user supplied cloud mask raster")
	runCmd.Flags().BoolVar(&localDOS, "localdos", false, "use block local dark object offsets")
	runCmd.Flags().BoolVar(&simpleDOS, "simpledos", false, "use a single dark object offset per band")
	runCmd.Flags().Float64Var(&dosOutRefl, "dosout", 20, "scaled reflectance assigned to dark objects")
	runCmd.Flags().BoolVar(&quicklooks, "quicklook", false, "render quicklook images beside the products")
	runCmd.Flags().BoolVar(&keepTmp, "keeptmp", false, "keep the scratch directory after the run")

	scenesCmd.Flags().IntVar(&wrsPath, "path", 0, "WRS path")
	scenesCmd.MarkFlagRequired("path")
	scenesCmd.Flags().IntVar(&wrsRow, "row", 0, "WRS row")
	scenesCmd.MarkFlagRequired("row")
	scenesCmd.Flags().StringVar(&spacecraft, "spacecraft", "", "spacecraft identifier, e.g. LANDSAT_5")
	scenesCmd.Flags().StringVar(&instrument, "instrument", "", "instrument identifier, e.g. TM")
	scenesCmd.Flags().StringVar(&collection, "collection", "", "collection category, e.g. T1 or PRE")
	scenesCmd.Flags().Float64Var(&maxCloud, "maxcloud", 0, "keep scenes strictly below this cloud cover")
	scenesCmd.Flags().StringVar(&startDate, "start", "", "keep scenes after this day, YYYY-MM-DD")
	scenesCmd.Flags().StringVar(&endDate, "end", "", "keep scenes before this day, YYYY-MM-DD")
	scenesCmd.Flags().IntVar(&sceneLimit, "limit", 0, "keep only the clearest N scenes")
	scenesCmd.Flags().StringVar(&manifestPath, "manifest", "", "write the selection as a download manifest")

	downloadCmd.Flags().StringVar(&manifest, "manifest", "", "manifest of remote scene paths")
	downloadCmd.MarkFlagRequired("manifest")
	downloadCmd.Flags().StringVar(&downDir, "output", "", "download directory")
	downloadCmd.MarkFlagRequired("output")
	downloadCmd.Flags().StringVar(&failList, "faillist", "", "rewrite failed remotes to this manifest")
	downloadCmd.Flags().BoolVar(&overwrite, "overwrite", false, "re-download scenes already present")
	downloadCmd.Flags().BoolVar(&multi, "multi", false, "pass -m to the copy command")
	downloadCmd.Flags().IntVar(&workers, "workers", 4, "concurrent downloads")
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			color.Red("PANIC: %v", r)
			stack := debug.Stack()
			notifyError(fmt.Sprintf("atmcorr panic:\n\n%v\n\nStack trace:\n%s", r, stack))
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
