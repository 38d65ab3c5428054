// Package config provides configuration parsing for gridwire servers.
//
// The configuration is stored in gridwire.json at the project root.
// This package handles loading, saving, and validating configuration.
//
// # Configuration File Structure
//
//	{
//	  "name": "campus",
//	  "server": {
//	    "addr": "0.0.0.0:23347",
//	    "tickRate": 20,
//	    "dayTicks": 9600,
//	    "timeout": "15s",
//	    "debugAddr": "localhost:23380"
//	  },
//	  "session": {
//	    "minPlayers": 1,
//	    "maxPlayers": 8,
//	    "autostart": false,
//	    "locked": false
//	  },
//	  "saves": {
//	    "backend": "disk",
//	    "dir": "saves",
//	    "name": "campus",
//	    "autosave": "2m"
//	  },
//	  "log": {
//	    "level": "info",
//	    "format": "text"
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Addr:", cfg.ListenAddr())
package config
