package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/openradarlab/radcap"
	"github.com/openradarlab/radcap/internal/capturedb"
)

var githash = "githash not computed"
var gitdate = "git date not computed"
var buildDate = "build date not computed"

// makeFileExist checks that dir/filename exists, and creates the directory
// and file if it doesn't.
func makeFileExist(dir, filename string) (string, error) {
	// Replace 1 instance of "$HOME" in the path with the actual home directory.
	if strings.Contains(dir, "$HOME") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = strings.Replace(dir, "$HOME", home, 1)
	}

	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			return "", err
		}
		if err2 := os.MkdirAll(dir, 0775); err2 != nil {
			return "", err2
		}
	}

	fullname := path.Join(dir, filename)
	_, err := os.Stat(fullname)
	if os.IsNotExist(err) {
		f, err2 := os.OpenFile(fullname, os.O_WRONLY|os.O_CREATE, 0664)
		if err2 != nil {
			return "", err2
		}
		f.Close()
	}
	return fullname, nil
}

// setupViper sets up the viper configuration manager: says where to find config
// files and the filename and suffix. Sets some defaults.
func setupViper() error {
	viper.SetDefault("Verbose", false)
	viper.SetDefault("Frames", 1)
	viper.SetDefault("TimeoutSeconds", 1.0)
	viper.SetDefault("OutputDir", "$HOME/.radcap/captures")
	viper.SetDefault("UseLedger", false)
	viper.SetDefault("Publish", false)

	HOME, err := os.UserHomeDir()
	if err != nil {
		fmt.Printf("Error finding User Home Dir: %s\n", err)
	}
	dotRadcap := filepath.Join(HOME, ".radcap")
	const filename string = "config"
	const suffix string = ".yaml"
	if _, err := makeFileExist(dotRadcap, filename+suffix); err != nil {
		return err
	}

	viper.SetConfigName(filename)
	viper.AddConfigPath(filepath.FromSlash("/etc/radcap"))
	viper.AddConfigPath(dotRadcap)
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %s", err)
	}
	return nil
}

func startLogger(pfname string) *log.Logger {
	probFile, err := os.OpenFile(pfname, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		msg := fmt.Sprintf("Could not open log file '%s'", pfname)
		panic(msg)
	}
	probLogger := log.New(probFile, "", log.LstdFlags)
	probLogger.SetOutput(&lumberjack.Logger{
		Filename:   pfname,
		MaxSize:    10,   // megabytes after which new file is created
		MaxBackups: 4,    // number of backups
		MaxAge:     180,  // days
		Compress:   true, // whether to gzip the backups
	})
	return probLogger
}

// capture runs one capture session: board bring-up, streaming, reassembly,
// recording, and optional publishing and ledger entries.
func capture(nframes int, timeout time.Duration) error {
	var board radcap.DeviceConfig
	if err := viper.UnmarshalKey("board", &board); err != nil {
		return fmt.Errorf("could not read board config: %s", err)
	}
	if board.LocalIP == "" {
		board = radcap.DefaultDeviceConfig
	}
	board.Verbose = viper.GetBool("Verbose")

	var adc radcap.StreamParams
	if err := viper.UnmarshalKey("adc", &adc); err != nil {
		return fmt.Errorf("could not read adc config: %s", err)
	}
	if adc.ChirpsPerFrame == 0 {
		adc = radcap.StreamParams{ChirpsPerFrame: 128, NumRx: 4, NumTx: 1,
			IQComponents: 1, SamplesPerChirp: 256, BytesPerSample: 4}
	}

	if err := radcap.CheckReceiveBufferSize(); err != nil {
		radcap.ProblemLogger.Printf("could not check kernel receive buffer: %v", err)
	}

	dev, err := radcap.NewDevice(board, adc)
	if err != nil {
		return err
	}
	defer dev.Close()

	if err := dev.Configure(timeout); err != nil {
		return err
	}
	if err := dev.StartStream(timeout); err != nil {
		return err
	}
	defer dev.StopStream(timeout)

	outdir := viper.GetString("OutputDir")
	if strings.Contains(outdir, "$HOME") {
		home, _ := os.UserHomeDir()
		outdir = strings.Replace(outdir, "$HOME", home, 1)
	}
	rec, err := radcap.NewRecorder(outdir)
	if err != nil {
		return err
	}

	abort := make(chan struct{})
	defer close(abort)

	ledger := capturedb.Dummy()
	if viper.GetBool("UseLedger") {
		host, _ := os.Hostname()
		ledger = capturedb.Start(&capturedb.ActivityMessage{
			ID:        rec.SessionID.String(),
			Hostname:  host,
			Githash:   radcap.Build.Githash,
			Version:   radcap.Build.Version,
			GoVersion: runtime.Version(),
			CPUs:      runtime.NumCPU(),
			Start:     time.Now(),
		}, abort)
	}

	var pubchan chan radcap.PublishedFrame
	if viper.GetBool("Publish") {
		pubchan = make(chan radcap.PublishedFrame, 4)
		go func() {
			if err := radcap.PublishFrames(pubchan, abort, radcap.Ports.Frames); err != nil {
				radcap.ProblemLogger.Printf("frame publisher failed: %v", err)
			}
		}()
	}

	start := time.Now()
	for i := 0; i < nframes; i++ {
		frame, err := dev.ReadFrame(timeout)
		if err != nil {
			radcap.ProblemLogger.Printf("frame %d: %v", i, err)
			break
		}
		rec.AddFrame(frame)
		if pubchan != nil {
			pubchan <- radcap.PublishedFrame{
				SessionID:  rec.SessionID.String(),
				FrameIndex: uint64(i),
				Lost:       uint32(frame.Lost),
				Samples:    frame.Data,
			}
		}
	}
	if err := rec.Close(); err != nil {
		return err
	}
	ledger.RecordSession(&capturedb.SessionMessage{
		ID:              rec.SessionID.String(),
		ActivityID:      rec.SessionID.String(),
		Filename:        rec.Filename(),
		ChirpsPerFrame:  adc.ChirpsPerFrame,
		NumRx:           adc.NumRx,
		SamplesPerChirp: adc.SamplesPerChirp,
		Frames:          rec.Frames(),
		LostPackets:     rec.Lost(),
		Start:           start,
		End:             time.Now(),
	})
	fmt.Printf("Captured %d frames (%d packets lost) to %s\n", rec.Frames(), rec.Lost(), rec.Filename())
	return nil
}

func main() {
	buildDate = strings.Replace(buildDate, ".", " ", -1) // workaround for Make problems
	radcap.Build.Date = buildDate
	radcap.Build.Githash = githash
	radcap.Build.Gitdate = gitdate
	radcap.Build.Summary = fmt.Sprintf("radcap version %s (git commit %s of %s)", radcap.Build.Version, githash, gitdate)
	if host, err := os.Hostname(); err == nil {
		radcap.Build.Host = host
	} else {
		radcap.Build.Host = "host not detected"
	}

	printVersion := flag.Bool("version", false, "print version and quit")
	cpuprofile := flag.String("cpuprofile", "", "write CPU profile to given file")
	nframes := flag.Int("frames", 0, "number of frames to capture (0: use config file)")
	flag.Parse()

	if *printVersion {
		fmt.Printf("This is radcap version %s\n", radcap.Build.Version)
		fmt.Printf("Git commit hash: %s\n", githash)
		fmt.Printf("Build time: %s\n", buildDate)
		fmt.Printf("Built on go version %s\n", runtime.Version())
		os.Exit(0)
	}

	banner := fmt.Sprintf("\nThis is radcap version %s (git commit %s)\n", radcap.Build.Version, githash)
	fmt.Print(banner)

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatal(err)
		}
		pprof.StartCPUProfile(f)
		defer pprof.StopCPUProfile()
	}

	// Start logging problems and updates to 2 log files.
	HOME, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}
	logdir := filepath.Join(HOME, ".radcap", "logs")
	problemname, err := makeFileExist(logdir, "problems.log")
	if err != nil {
		panic(err)
	}
	logname, err := makeFileExist(logdir, "updates.log")
	if err != nil {
		panic(err)
	}
	radcap.ProblemLogger = startLogger(problemname)
	radcap.UpdateLogger = startLogger(logname)
	fmt.Printf("Logging problems to %s\n", problemname)
	fmt.Printf("Logging updates  to %s\n\n", logname)
	radcap.UpdateLogger.Printf("\n\n\n\n%s", banner)

	if err := setupViper(); err != nil {
		panic(err)
	}

	n := *nframes
	if n <= 0 {
		n = viper.GetInt("Frames")
	}
	timeout := time.Duration(viper.GetFloat64("TimeoutSeconds") * float64(time.Second))
	if err := capture(n, timeout); err != nil {
		radcap.ProblemLogger.Printf("capture failed: %v", err)
		fmt.Printf("capture failed: %v\n", err)
		os.Exit(1)
	}
}
