package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/hazard-sim/internal/hazard"
	"github.com/sweeney/hazard-sim/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"num": func(v float64) string {
		return fmt.Sprintf("%.1f", v)
	},
	"statusClass": func(s hazard.Status) string {
		switch s {
		case hazard.StatusCritical:
			return "critical"
		case hazard.StatusWarning:
			return "warning"
		}
		return "safe"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Hazard Simulation</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.safe { color: green; font-weight: bold; }
.warning { color: orange; font-weight: bold; }
.critical { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
.activity { list-style: none; padding: 0; }
.activity .error { color: red; }
.activity .success { color: green; }
.activity .command { color: #06c; }
</style>
</head>
<body>
<h1>Hazard Simulation<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<h2>Sensors</h2>
<table>
<tr><th>Status</th><td id="status" class="{{statusClass .Sensors.Status}}">{{.Sensors.Status}}</td></tr>
<tr><th>Smoke</th><td id="smoke">{{num .Sensors.Smoke}}</td></tr>
<tr><th>CO2</th><td id="co2">{{num .Sensors.CO2}}</td></tr>
<tr><th>PM2.5</th><td id="pm25">{{num .Sensors.PM25}}</td></tr>
<tr><th>Temperature</th><td id="temp">{{num .Sensors.Temp}}</td></tr>
</table>

<h2>Hazards</h2>
<table>
<tr><th>Smoke level</th><td id="smoke-level">{{num .State.SmokeLevel}}</td></tr>
<tr><th>Alarm</th><td id="alarm">{{if .State.AlarmActive}}ACTIVE{{else}}off{{end}}</td></tr>
<tr><th>Emergency</th><td id="emergency">{{if .State.EmergencyMode}}ACTIVE{{else}}off{{end}}</td></tr>
<tr><th>Chimney</th><td id="chimney">{{if .State.ChimneyBlocked}}blocked{{else}}clear{{end}}</td></tr>
<tr><th>Burners lit</th><td id="burners">{{.State.ActiveBurners}}</td></tr>
<tr><th>Burning items</th><td id="burning">{{len .State.BurningItems}}</td></tr>
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td id="mqtt" class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Client ID</th><td>{{.Config.ClientID}}</td></tr>
{{if .MQTTLastError}}<tr><th>Last error</th><td>{{.MQTTLastError}}</td></tr>{{end}}
<tr><th>Published</th><td>{{.Publish.Published}} ({{.Publish.Skipped}} skipped, {{.Publish.Failed}} failed)</td></tr>
{{if .LastCommand}}<tr><th>Last command</th><td>{{.LastCommand.Command}} ({{.LastCommand.Result.Outcome}})</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Decay</th><td>{{.Config.DecayIntervalMs}}ms</td></tr>
<tr><th>Publish</th><td>{{.Config.PublishIntervalMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<h2>Activity</h2>
<ul id="activity" class="activity"></ul>

<p><a href="/index.json">JSON</a> | <a href="/api/logs">Logs</a></p>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }
  function set(id, text, cls) {
    var el = document.getElementById(id);
    el.textContent = text;
    if (cls !== undefined) { el.className = cls; }
  }
  var activity = document.getElementById("activity");
  function addLogs(entries) {
    entries.forEach(function(e) {
      var li = document.createElement("li");
      li.className = e.type;
      li.textContent = e.time + " " + e.message;
      activity.insertBefore(li, activity.firstChild);
    });
    while (activity.children.length > 20) { activity.removeChild(activity.lastChild); }
  }
  function connect() {
    var proto = location.protocol === "https:" ? "wss://" : "ws://";
    var ws = new WebSocket(proto + location.host + "/ws");
    ws.onopen = function() {
      setDot("ok", "live");
      activity.textContent = "";
    };
    ws.onclose = function() {
      setDot("err", "offline");
      setTimeout(connect, 3000);
    };
    ws.onmessage = function(ev) {
      try {
        var msg = JSON.parse(ev.data);
        if (msg.type === "logs") { addLogs(msg.data); return; }
        if (msg.type !== "state") { return; }
        var s = msg.data.sensors, st = msg.data.state;
        set("status", s.status, s.status.toLowerCase());
        set("smoke", s.smoke.toFixed(1));
        set("co2", s.co2.toFixed(1));
        set("pm25", s.pm25.toFixed(1));
        set("temp", s.temp.toFixed(1));
        set("smoke-level", st.smoke_level.toFixed(1));
        set("alarm", st.alarm_active ? "ACTIVE" : "off");
        set("emergency", st.emergency_mode ? "ACTIVE" : "off");
        set("chimney", st.chimney_blocked ? "blocked" : "clear");
        set("burners", st.stove_burners.filter(Boolean).length);
        set("burning", (st.burning_items || []).length);
        set("mqtt", msg.data.mqtt_connected ? "connected" : "disconnected",
          msg.data.mqtt_connected ? "connected" : "disconnected");
      } catch (e) {}
    };
  }
  connect();
})();
</script>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot, st hazard.State, agg hazard.AggregatedSensors) error {
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		State   hazard.State
		Sensors hazard.AggregatedSensors
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		State:    st,
		Sensors:  agg,
	}
	return indexTmpl.Execute(w, data)
}
