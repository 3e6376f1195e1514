package api

import (
	"html/template"
	"net/http"

	"github.com/speechviz/voicemap/internal/log"
)

// viewerHTML is the embedded interactive viewer. It renders one tab per
// listener group, hover tooltips with speaker and language, and plays the
// clicked point's stimulus audio. Cantonese stimuli plot as circles,
// English stimuli as squares; all tabs share the same axis ranges.
const viewerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Voice similarity map</title>
<script src="https://cdn.plot.ly/plotly-2.32.0.min.js"></script>
<style>
  body { font-family: sans-serif; margin: 1.5rem; }
  .tabs button { padding: 0.4rem 1rem; margin-right: 0.3rem; cursor: pointer; }
  .tabs button.active { font-weight: bold; border-bottom: 2px solid #444; }
  #plot { width: 820px; height: 620px; }
  #player { margin-top: 0.8rem; }
</style>
</head>
<body>
<h3>MDS results (click a point to play audio)</h3>
<div class="tabs" id="tabs"></div>
<div id="plot"></div>
<div id="player">Click a point to play audio.</div>
<script>
const state = { doc: null, active: 0 };

function markerSymbol(lang) { return lang === "can" ? "circle" : "square"; }

function traces(group, dims) {
  const byLang = {};
  group.points.forEach(p => {
    (byLang[p.language] = byLang[p.language] || []).push(p);
  });
  return Object.keys(byLang).sort().map(lang => {
    const pts = byLang[lang];
    const t = {
      x: pts.map(p => p.coords[0]),
      y: pts.map(p => p.coords[1]),
      mode: "markers+text",
      type: dims === 3 ? "scatter3d" : "scatter",
      text: pts.map(p => p.label),
      textposition: "top center",
      customdata: pts.map(p => p.audio),
      hoverinfo: "text",
      hovertext: pts.map(p => p.label + "<br>Speaker: " + p.speaker + "<br>Language: " + p.language),
      marker: {
        symbol: markerSymbol(lang),
        size: dims === 3 ? 6 : 15,
        line: { width: 1, color: "black" },
      },
    };
    if (dims === 3) { t.z = pts.map(p => p.coords[2]); }
    return t;
  });
}

function render() {
  const doc = state.doc;
  const group = doc.groups[state.active];
  const layout = {
    title: group.title,
    width: 800, height: 600,
    showlegend: false,
    margin: { l: 60, r: 60, b: 60, t: 60 },
  };
  if (doc.dimensions === 3) {
    layout.scene = {
      xaxis: { title: "Dimension 1", range: [doc.axes[0].min, doc.axes[0].max] },
      yaxis: { title: "Dimension 2", range: [doc.axes[1].min, doc.axes[1].max] },
      zaxis: { title: "Dimension 3", range: [doc.axes[2].min, doc.axes[2].max] },
    };
  } else {
    layout.xaxis = { title: "Dimension 1", range: [doc.axes[0].min, doc.axes[0].max] };
    layout.yaxis = { title: "Dimension 2", range: [doc.axes[1].min, doc.axes[1].max] };
  }
  Plotly.newPlot("plot", traces(group, doc.dimensions), layout).then(gd => {
    gd.on("plotly_click", ev => {
      const audio = ev.points[0].customdata;
      const player = document.getElementById("player");
      if (!audio) { player.textContent = "No audio for this point."; return; }
      player.innerHTML = "";
      const el = document.createElement("audio");
      el.src = "/audio/" + encodeURIComponent(audio);
      el.controls = true;
      el.autoplay = true;
      el.style.width = "400px";
      player.appendChild(el);
    });
  });
}

function renderTabs() {
  const tabs = document.getElementById("tabs");
  tabs.innerHTML = "";
  state.doc.groups.forEach((g, i) => {
    const b = document.createElement("button");
    b.textContent = g.title;
    if (i === state.active) b.className = "active";
    b.onclick = () => { state.active = i; renderTabs(); render(); };
    tabs.appendChild(b);
  });
}

fetch("/api/projections")
  .then(r => {
    if (!r.ok) throw new Error("projections not available yet");
    return r.json();
  })
  .then(doc => { state.doc = doc; renderTabs(); render(); })
  .catch(err => {
    document.getElementById("plot").textContent = err.message;
  });
</script>
</body>
</html>
`

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "api")

	tmpl, err := template.New("viewer").Parse(viewerHTML)
	if err != nil {
		logger.Error().Err(err).Msg("viewer template parse failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, nil); err != nil {
		logger.Error().Err(err).Msg("viewer template render failed")
	}
}
