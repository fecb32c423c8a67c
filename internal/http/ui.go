package http

import nethttp "net/http"

func dashboardHandler(w nethttp.ResponseWriter, r *nethttp.Request) {
	if r.URL.Path != "/" {
		nethttp.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(nethttp.StatusOK)
	_, _ = w.Write([]byte(dashboardHTML))
}

func faviconHandler(w nethttp.ResponseWriter, _ *nethttp.Request) {
	w.WriteHeader(nethttp.StatusNoContent)
}

const dashboardHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Churn Ops Dashboard</title>
  <style>
    :root {
      --ink: #1d2733;
      --muted: #6b7785;
      --line: #dde3ea;
      --bg: #f5f7fa;
      --card: #ffffff;
      --accent: #2563eb;
      --ok: #15803d;
      --warn: #b45309;
      --bad: #b91c1c;
    }
    * { box-sizing: border-box; }
    body { margin: 0; font: 14px/1.45 system-ui, -apple-system, "Segoe UI", sans-serif; color: var(--ink); background: var(--bg); }
    header { display: flex; align-items: center; justify-content: space-between; padding: 14px 24px; background: var(--card); border-bottom: 1px solid var(--line); }
    header h1 { margin: 0; font-size: 18px; }
    main { padding: 20px 24px; display: grid; gap: 20px; }
    .cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(160px, 1fr)); gap: 12px; }
    .card { background: var(--card); border: 1px solid var(--line); border-radius: 8px; padding: 12px 14px; }
    .card .label { color: var(--muted); font-size: 12px; text-transform: uppercase; letter-spacing: .04em; }
    .card .value { font-size: 22px; font-weight: 600; }
    .card.alert .value { color: var(--bad); }
    section { background: var(--card); border: 1px solid var(--line); border-radius: 8px; padding: 14px; }
    section h2 { margin: 0 0 10px; font-size: 15px; }
    .toolbar { display: flex; flex-wrap: wrap; gap: 8px; align-items: center; margin-bottom: 10px; }
    button, select, input { font: inherit; padding: 5px 10px; border: 1px solid var(--line); border-radius: 6px; background: #fff; }
    button { cursor: pointer; }
    button.primary { background: var(--accent); border-color: var(--accent); color: #fff; }
    button:disabled { opacity: .5; cursor: default; }
    table { width: 100%; border-collapse: collapse; }
    th, td { padding: 6px 8px; border-bottom: 1px solid var(--line); text-align: left; white-space: nowrap; }
    th { cursor: pointer; user-select: none; color: var(--muted); font-weight: 600; }
    tr.row:hover { background: #f0f4ff; cursor: pointer; }
    .badge { padding: 1px 8px; border-radius: 10px; font-size: 12px; }
    .badge.not_notified { background: #fde8e8; color: var(--bad); }
    .badge.notified { background: #e7f6ec; color: var(--ok); }
    .badge.responded_ok { background: #e0ecff; color: var(--accent); }
    .badge.responded_no { background: #fff3dc; color: var(--warn); }
    .move { padding: 0 6px; font-size: 11px; line-height: 1.3; }
    .pager { display: flex; gap: 8px; align-items: center; margin-top: 10px; color: var(--muted); }
    #chart { width: 100%; height: 220px; }
    #detail { display: none; }
    #detail dl { display: grid; grid-template-columns: 180px 1fr; gap: 4px 12px; margin: 0 0 12px; }
    #detail dt { color: var(--muted); }
    .band-low { color: var(--ok); } .band-medium { color: var(--warn); } .band-high { color: var(--bad); }
    #toast { position: fixed; right: 20px; bottom: 20px; padding: 10px 14px; border-radius: 6px; color: #fff; display: none; max-width: 420px; }
    #toast.ok { background: var(--ok); } #toast.err { background: var(--bad); }
    .split { display: grid; grid-template-columns: 1fr 1fr; gap: 20px; }
    #answer { white-space: pre-wrap; color: var(--muted); margin-top: 8px; }
  </style>
</head>
<body>
  <header>
    <h1>Churn Ops Dashboard</h1>
    <span id="source" class="label"></span>
  </header>
  <main>
    <div class="cards" id="cards"></div>

    <section>
      <div class="toolbar">
        <h2 style="margin:0;flex:1">Churn over time</h2>
        <select id="range"><option value="90d">Last 3 months</option><option value="30d">Last 30 days</option><option value="7d">Last 7 days</option></select>
      </div>
      <svg id="chart" viewBox="0 0 800 220" preserveAspectRatio="none"></svg>
    </section>

    <section>
      <div class="toolbar">
        <h2 style="margin:0;flex:1">Customers</h2>
        <input id="search" placeholder="Filter names..." />
        <select id="status"><option value="">All statuses</option></select>
        <button id="notify" class="primary">Notify selected</button>
        <button id="predict">Predict churn</button>
      </div>
      <table>
        <thead><tr id="head"></tr></thead>
        <tbody id="rows"></tbody>
      </table>
      <div class="pager">
        <button id="prev">Previous</button>
        <span id="pageinfo"></span>
        <button id="next">Next</button>
        <select id="pagesize"></select>
        <span id="selinfo"></span>
      </div>
    </section>

    <section id="detail"></section>

    <div class="split">
      <section>
        <h2>Upload customers (CSV)</h2>
        <form id="upload"><input type="file" name="file" accept=".csv" /> <button id="uploadbtn" class="primary">Upload</button></form>
      </section>
      <section>
        <h2>Ask the assistant</h2>
        <form id="ask"><input id="question" style="width:70%" placeholder="How many customers churned last month?" /> <button id="askbtn">Ask</button></form>
        <div id="answer"></div>
      </section>
    </div>
  </main>
  <div id="toast"></div>

  <script>
    const state = { page: 1, pageSize: 10, sort: [], filters: {}, order: [], selected: new Set() };
    const $ = (id) => document.getElementById(id);

    function toast(msg, ok) {
      const t = $("toast");
      t.textContent = msg;
      t.className = ok ? "ok" : "err";
      t.style.display = "block";
      clearTimeout(t._h);
      t._h = setTimeout(() => { t.style.display = "none"; }, 4000);
    }

    async function api(path, opts) {
      const res = await fetch(path, opts);
      const body = await res.json().catch(() => ({ error: "HTTP " + res.status }));
      if (!res.ok) throw new Error(body.error || ("HTTP " + res.status));
      return body;
    }

    function esc(s) {
      return String(s == null ? "" : s).replace(/[&<>"]/g, (c) => ({ "&": "&amp;", "<": "&lt;", ">": "&gt;", '"': "&quot;" })[c]);
    }

    async function loadSettings() {
      const s = (await api("/api/v1/settings/dashboard")).data;
      state.pageSize = s.default_page_size;
      $("source").textContent = "source: " + s.customer_source;
      $("pagesize").innerHTML = s.page_sizes.map((n) => "<option" + (n === state.pageSize ? " selected" : "") + ">" + n + "</option>").join("");
      $("status").innerHTML += s.status_filter_values.map((v) => "<option value=\"" + v + "\">" + v.replace(/_/g, " ") + "</option>").join("");
      state.settings = s;
    }

    async function loadOverview() {
      try {
        const o = (await api("/api/v1/dashboard/overview?range=" + $("range").value)).data;
        const st = o.stats;
        const card = (label, value, alert) => "<div class=\"card" + (alert ? " alert" : "") + "\"><div class=\"label\">" + label + "</div><div class=\"value\">" + value + "</div></div>";
        $("cards").innerHTML = card("Customers", st.total_customers) +
          card("Churn rate", st.churn_percentage.toFixed(1) + "%", o.high_churn) +
          card("Churned", st.churn_count) +
          card("At risk", st.at_risk_count) +
          card("Notified", st.notified_count) +
          card("Response rate", st.response_rate.toFixed(1) + "%", o.low_response) +
          card("With predictions", st.customers_with_predictions);
        drawChart(o.series);
      } catch (e) {
        $("cards").innerHTML = "<div class=\"card alert\"><div class=\"label\">Dashboard</div><div class=\"value\">" + esc(e.message) + "</div></div>";
      }
    }

    function drawChart(points) {
      const svg = $("chart");
      if (!points.length) { svg.innerHTML = "<text x=\"10\" y=\"20\" fill=\"#6b7785\">No data</text>"; return; }
      const max = Math.max(1, ...points.map((p) => p.churn));
      const step = points.length > 1 ? 780 / (points.length - 1) : 0;
      const xy = points.map((p, i) => (10 + i * step).toFixed(1) + "," + (210 - (p.churn / max) * 190).toFixed(1));
      svg.innerHTML = "<polyline fill=\"none\" stroke=\"#2563eb\" stroke-width=\"2\" points=\"" + xy.join(" ") + "\" />";
    }

    function tableQuery() {
      const q = new URLSearchParams();
      q.set("page", state.page);
      q.set("page_size", state.pageSize);
      if (state.sort.length) q.set("sort", state.sort.map((k) => (k.desc ? "-" : "") + k.column).join(","));
      for (const [k, v] of Object.entries(state.filters)) if (v) q.set("filter." + k, v);
      if (state.order.length) q.set("order", state.order.join(","));
      return q.toString();
    }

    async function loadCustomers() {
      let body;
      try {
        body = await api("/api/v1/customers?" + tableQuery());
      } catch (e) {
        $("rows").innerHTML = "<tr><td colspan=\"12\">" + esc(e.message) + "</td></tr>";
        return;
      }
      const m = body.meta;
      state.page = m.page;
      state.order = m.order.map(String);
      const cols = m.columns.filter((c) => c.id !== "email");
      $("head").innerHTML = "<th><input type=\"checkbox\" id=\"all\" /></th><th></th>" + cols.map((c) => {
        const k = state.sort.find((s) => s.column === c.id);
        return "<th data-col=\"" + c.id + "\">" + esc(c.header) + (k ? (k.desc ? " ▼" : " ▲") : "") + "</th>";
      }).join("");
      $("rows").innerHTML = body.data.map((r) => "<tr class=\"row\" data-id=\"" + esc(r.customer_id) + "\"><td><input type=\"checkbox\"" +
        (state.selected.has(String(r.customer_id)) ? " checked" : "") + " /></td>" +
        "<td><button class=\"move\" data-move=\"-1\" title=\"Move up\">▲</button><button class=\"move\" data-move=\"1\" title=\"Move down\">▼</button></td>" + cols.map((c) => "<td>" + cell(r, c.id) + "</td>").join("") + "</tr>").join("");
      $("pageinfo").textContent = "Page " + m.page + " of " + Math.max(m.page_count, 1) + " (" + m.filtered + " of " + m.total + ")";
      $("prev").disabled = m.page <= 1;
      $("next").disabled = m.page >= m.page_count;
      $("selinfo").textContent = state.selected.size ? state.selected.size + " selected" : "";
    }

    function cell(r, col) {
      switch (col) {
        case "name": return esc(((r.first_name || "") + " " + (r.last_name || "")).trim() || ("Customer " + r.customer_id));
        case "status": return "<span class=\"badge " + r.status + "\">" + r.status.replace(/_/g, " ") + "</span>";
        case "churned": return r.churned ? "Yes" : "No";
        case "notified": return r.notified ? "Yes" : "No";
        case "monthly_charges": case "total_charges": return "$" + Number(r[col]).toFixed(2);
        case "churn_probability": return r.churn_probability == null ? "-" : esc(r.churn_probability);
        default: return esc(r[col] || "-");
      }
    }

    async function showDetail(id) {
      const panel = $("detail");
      try {
        const v = (await api("/api/v1/customers/" + encodeURIComponent(id))).data.view;
        panel.innerHTML = "<h2>" + esc(v.name) + " <small>#" + esc(v.customer_id) + "</small></h2>" +
          "<p>Churn probability: <b class=\"band-" + v.probability.band + "\">" + v.probability.label + "</b></p>" +
          "<div class=\"toolbar\"><button class=\"primary\" data-action=\"notify\">Notify</button><button data-action=\"predict\">Predict churn</button></div>" +
          v.sections.map((s) => "<h3>" + esc(s.title) + "</h3><dl>" + s.fields.map((f) => "<dt>" + esc(f.label) + "</dt><dd>" + esc(f.value) + (f.note ? " <small>(" + esc(f.note) + ")</small>" : "") + "</dd>").join("") + "</dl>").join("");
        panel.dataset.id = String(v.customer_id);
      } catch (e) {
        panel.innerHTML = "<p>" + esc(e.message) + "</p>";
      }
      panel.style.display = "block";
      panel.scrollIntoView({ behavior: "smooth" });
    }

    // Table actions target selected rows the current filters leave visible;
    // the server narrows the selection with the same filters.
    async function runAction(kind, button, single) {
      button.disabled = true;
      const payload = single ? { customer_ids: [single] } : { customer_ids: Array.from(state.selected), filters: state.filters };
      try {
        const out = (await api("/api/v1/actions/" + kind, {
          method: "POST",
          headers: { "Content-Type": "application/json" },
          body: JSON.stringify(payload),
        })).data;
        toast(out.message, out.failed.length === 0);
        if (out.reload && !single) state.selected.clear();
        await Promise.all([loadCustomers(), loadOverview()]);
        if (single) await showDetail(single);
      } catch (e) {
        toast(e.message, false);
      } finally {
        button.disabled = false;
      }
    }

    $("head").addEventListener("click", (ev) => {
      if (ev.target.id === "all") {
        document.querySelectorAll("#rows tr").forEach((tr) => {
          if (ev.target.checked) state.selected.add(tr.dataset.id); else state.selected.delete(tr.dataset.id);
        });
        loadCustomers();
        return;
      }
      const col = ev.target.dataset.col;
      if (!col) return;
      const k = state.sort.find((s) => s.column === col);
      if (!k) state.sort = [{ column: col, desc: false }];
      else if (!k.desc) k.desc = true;
      else state.sort = [];
      state.page = 1;
      loadCustomers();
    });
    function moveRow(id, delta) {
      const rows = Array.from(document.querySelectorAll("#rows tr"));
      const at = rows.findIndex((tr) => tr.dataset.id === id);
      const over = rows[at + delta];
      if (at < 0 || !over) return;
      const order = state.order.slice();
      const from = order.indexOf(id);
      const to = order.indexOf(over.dataset.id);
      if (from < 0 || to < 0) return;
      order.splice(to, 0, order.splice(from, 1)[0]);
      state.order = order;
      loadCustomers();
    }

    $("rows").addEventListener("click", (ev) => {
      const tr = ev.target.closest("tr");
      if (!tr) return;
      if (ev.target.dataset.move) {
        moveRow(tr.dataset.id, Number(ev.target.dataset.move));
        return;
      }
      if (ev.target.type === "checkbox") {
        if (ev.target.checked) state.selected.add(tr.dataset.id); else state.selected.delete(tr.dataset.id);
        $("selinfo").textContent = state.selected.size ? state.selected.size + " selected" : "";
        return;
      }
      showDetail(tr.dataset.id);
    });
    $("prev").onclick = () => { state.page--; loadCustomers(); };
    $("next").onclick = () => { state.page++; loadCustomers(); };
    $("pagesize").onchange = (ev) => { state.pageSize = Number(ev.target.value); loadCustomers(); };
    $("status").onchange = (ev) => { state.filters.status = ev.target.value; state.page = 1; loadCustomers(); };
    $("search").oninput = (ev) => { state.filters.name = ev.target.value; state.page = 1; loadCustomers(); };
    $("range").onchange = loadOverview;
    $("detail").addEventListener("click", (ev) => {
      const kind = ev.target.dataset.action;
      if (kind) runAction(kind, ev.target, $("detail").dataset.id);
    });
    $("notify").onclick = () => runAction("notify", $("notify"));
    $("predict").onclick = () => runAction("predict", $("predict"));

    $("upload").onsubmit = async (ev) => {
      ev.preventDefault();
      const form = ev.target;
      const btn = $("uploadbtn");
      btn.disabled = true;
      try {
        const body = await api("/api/v1/customers/upload", { method: "POST", body: new FormData(form) });
        toast(body.meta.message, true);
        await Promise.all([loadCustomers(), loadOverview()]);
      } catch (e) {
        toast(e.message, false);
      } finally {
        form.reset();
        btn.disabled = false;
      }
    };

    $("ask").onsubmit = async (ev) => {
      ev.preventDefault();
      const btn = $("askbtn");
      btn.disabled = true;
      try {
        const body = await api("/api/v1/chatbot/query", {
          method: "POST",
          headers: { "Content-Type": "application/json" },
          body: JSON.stringify({ question: $("question").value }),
        });
        $("answer").textContent = body.data.answer;
      } catch (e) {
        $("answer").textContent = e.message;
      } finally {
        btn.disabled = false;
      }
    };

    loadSettings().finally(() => { loadOverview(); loadCustomers(); });
  </script>
</body>
</html>
`
